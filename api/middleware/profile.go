package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/minierp-console/api/responses"
	"github.com/angelmondragon/minierp-console/internal/console"
	"github.com/angelmondragon/minierp-console/pkg/config"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

// ProfileHeader lets non-browser callers pin a console profile without cookies.
const ProfileHeader = "X-Console-Profile"

const profileCookieMaxAge = 365 * 24 * 60 * 60

// ConsoleResolver returns the console bound to a profile id.
type ConsoleResolver interface {
	Get(ctx context.Context, profileID string) (*console.Console, error)
}

// ConsoleProfile resolves the caller's console profile from the header or the
// profile cookie, minting a new profile when neither carries a valid id.
func ConsoleProfile(cfg config.ConsoleConfig, resolver ConsoleResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = "minierp_profile"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if resolver == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "console registry unavailable"))
				return
			}

			profileID, fresh := profileFromRequest(r, cookieName)
			if fresh {
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    profileID,
					Path:     "/",
					MaxAge:   profileCookieMaxAge,
					HttpOnly: true,
					Secure:   cfg.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			w.Header().Set(ProfileHeader, profileID)

			if logg != nil {
				ctx = logg.WithProfileID(ctx, profileID)
			}

			c, err := resolver.Get(ctx, profileID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load console profile"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithConsole(ctx, c)))
		})
	}
}

func profileFromRequest(r *http.Request, cookieName string) (string, bool) {
	if id, ok := parseProfileID(r.Header.Get(ProfileHeader)); ok {
		return id, false
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		if id, ok := parseProfileID(cookie.Value); ok {
			return id, false
		}
	}
	return uuid.NewString(), true
}

func parseProfileID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
