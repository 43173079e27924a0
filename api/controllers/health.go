package controllers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/minierp-console/api/responses"
	"github.com/angelmondragon/minierp-console/pkg/config"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency probed by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MiniERP-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every state dependency; a nil entry is skipped.
func HealthReady(cfg *config.Config, deps map[string]Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MiniERP-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var (
			errs    error
			failing = map[string]string{}
		)
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				failing[name] = err.Error()
				errs = multierr.Append(errs, err)
			}
		}
		if errs != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "dependencies unavailable").
				WithDetails(map[string]any{"failing": failing}))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
