package controllers

import (
	"net/http"

	"github.com/angelmondragon/minierp-console/api/middleware"
	"github.com/angelmondragon/minierp-console/api/responses"
	"github.com/angelmondragon/minierp-console/internal/console"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

// consoleFor returns the caller's console, writing an error when the profile
// middleware did not run.
func consoleFor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (*console.Console, bool) {
	c := middleware.ConsoleFromContext(r.Context())
	if c == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "console profile missing"))
		return nil, false
	}
	return c, true
}
