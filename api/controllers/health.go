package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/settlements-backend/api/responses"
	"github.com/angelmondragon/settlements-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/settlements-backend/pkg/errors"
	"github.com/angelmondragon/settlements-backend/pkg/logger"
)

// Pinger is the connectivity probe shared by the database and Redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Settlements-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]any{"success": true, "status": "live"})
	}
}

// HealthReady reports ready only when both backing stores answer a ping.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Settlements-Env", cfg.App.Env)

		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]any{"success": true, "status": "ready"})
	}
}
