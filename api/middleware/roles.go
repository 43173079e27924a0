package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/minierp-console/api/responses"
	"github.com/angelmondragon/minierp-console/pkg/enums"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

// RequireRole admits actors whose role is one of allowed. It must run after
// RequireSession, which seeds the role.
func RequireRole(logg *logger.Logger, allowed ...enums.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role := enums.Role(RoleFromContext(ctx))
			if !slices.Contains(allowed, role) {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "required_roles", allowed), "role check denied")
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "your role cannot access this section"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
