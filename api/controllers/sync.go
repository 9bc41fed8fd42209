package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/pos-engine/api/responses"
	"github.com/angelmondragon/pos-engine/api/validators"
	"github.com/angelmondragon/pos-engine/pkg/logger"
	"github.com/angelmondragon/pos-engine/pkg/outbox"
)

// SyncEngine is the outbox surface shown to the register UI.
type SyncEngine interface {
	Status(ctx context.Context) (outbox.Status, error)
	Failed(ctx context.Context, limit int) ([]outbox.FailedItem, error)
	RetryFailed(ctx context.Context) (int64, error)
	ProcessQueue(ctx context.Context) (outbox.Result, error)
}

func SyncStatus(engine SyncEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := engine.Status(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func SyncFailed(engine SyncEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := engine.Failed(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

type retryResponse struct {
	Requeued int64 `json:"requeued"`
}

// SyncRetry unfreezes every item that ran out of attempts.
func SyncRetry(engine SyncEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := engine.RetryFailed(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, retryResponse{Requeued: n})
	}
}

type passResponse struct {
	Attempted int  `json:"attempted"`
	Delivered int  `json:"delivered"`
	Failed    int  `json:"failed"`
	Frozen    int  `json:"frozen"`
	Skipped   bool `json:"skipped"`
	Stopped   bool `json:"stopped"`
	More      bool `json:"more"`
}

// SyncRun runs one delivery pass now instead of waiting for the poll.
func SyncRun(engine SyncEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := engine.ProcessQueue(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, passResponse(res))
	}
}
