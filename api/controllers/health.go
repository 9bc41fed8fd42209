package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/pos-engine/api/responses"
	"github.com/angelmondragon/pos-engine/pkg/config"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Register-Id", cfg.Register.ID)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady only checks the local store. The register is ready to sell
// while the ledger is unreachable.
func HealthReady(cfg *config.Config, db Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Register-Id", cfg.Register.ID)
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "local store unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
