package controllers

import (
	"net/http"

	"github.com/angelmondragon/minierp-console/api/responses"
	"github.com/angelmondragon/minierp-console/api/validators"
	"github.com/angelmondragon/minierp-console/internal/session"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Email    string `json:"email"`
}

// SessionGet returns the signed-in identity, if any.
func SessionGet(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		current, err := c.Session.Current(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, current.View())
	}
}

func SessionLogin(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}

		// Field checks happen in the store so the CLI gets the same errors.
		var body loginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		next, err := c.Session.Login(r.Context(), session.Credentials{
			Username: validators.SanitizeString(body.Username, 0),
			Password: body.Password,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, next.View())
	}
}

func SessionLogout(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}
		if err := c.Session.Logout(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session.Anonymous().View())
	}
}

func SessionRegister(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := consoleFor(w, r, logg)
		if !ok {
			return
		}

		var body registerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := session.RegisterInput{
			Username: validators.SanitizeString(body.Username, 0),
			Password: body.Password,
			Role:     body.Role,
			Email:    body.Email,
		}
		if err := c.Session.Register(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{
			"detail":   "account created",
			"username": input.Username,
		})
	}
}
