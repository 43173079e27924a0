package middleware

import (
	"net/http"

	"github.com/angelmondragon/minierp-console/api/responses"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

// RequireSession rejects requests whose console profile is not signed in and
// seeds the context with the actor's username and role.
func RequireSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			c := ConsoleFromContext(ctx)
			if c == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "console profile missing"))
				return
			}

			current, err := c.Session.Current(ctx)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			id, err := current.RequireAuthenticated()
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			ctx = withActor(ctx, id.Username, string(id.Role))
			if logg != nil {
				ctx = logg.WithUsername(ctx, id.Username)
				ctx = logg.WithActorRole(ctx, string(id.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
