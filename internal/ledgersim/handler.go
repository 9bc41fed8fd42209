package ledgersim

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/pos-engine/api/middleware"
	"github.com/angelmondragon/pos-engine/api/responses"
	"github.com/angelmondragon/pos-engine/api/validators"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/ledger"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerRegisterID     = "X-Register-ID"
)

// Claimer holds an idempotency key while its write is being applied, so two
// simulator replicas never apply the same operation concurrently.
// *idempotency.Manager satisfies it.
type Claimer interface {
	Claim(ctx context.Context, resource, key string) (bool, error)
	Release(ctx context.Context, resource, key string) error
}

type HandlerParams struct {
	Service *Service
	APIKey  string
	// Claims is optional; without it the database primary keys are the only guard.
	Claims Claimer
	Logger *logger.Logger
}

type handler struct {
	svc    *Service
	apiKey string
	claims Claimer
	logg   *logger.Logger
}

// NewRouter serves the ledger contract the register's sync client speaks.
func NewRouter(params HandlerParams) http.Handler {
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	h := &handler{svc: params.Service, apiKey: strings.TrimSpace(params.APIKey), claims: params.Claims, logg: logg}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAPIKey)

		r.Post("/transactions", h.createTransaction)
		r.Get("/transactions/{transactionID}", h.getTransaction)
		r.Post("/transactions/{transactionID}/void", h.voidTransaction)
		r.Get("/subjects/{subjectID}/events", h.listEvents)
		r.Post("/inventory-adjustments", h.adjustInventory)
		r.Get("/inventory/{itemID}", h.stockLevel)
		r.Post("/customers", h.upsertCustomer)
	})
	return r
}

func (h *handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" {
			token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if token != h.apiKey {
				responses.WriteError(r.Context(), h.logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req ledger.TransactionRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	h.guarded(w, r, "transactions", func(ctx context.Context) (ledger.Response, error) {
		return h.svc.RecordTransaction(ctx, r.Header.Get(headerRegisterID), req)
	})
}

func (h *handler) voidTransaction(w http.ResponseWriter, r *http.Request) {
	var req ledger.VoidRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	id := chi.URLParam(r, "transactionID")
	h.guarded(w, r, "voids", func(ctx context.Context) (ledger.Response, error) {
		return h.svc.VoidTransaction(ctx, r.Header.Get(headerRegisterID), id, req)
	})
}

func (h *handler) adjustInventory(w http.ResponseWriter, r *http.Request) {
	var req ledger.InventoryAdjustmentRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	h.guarded(w, r, "inventory_adjustments", func(ctx context.Context) (ledger.Response, error) {
		return h.svc.AdjustInventory(ctx, r.Header.Get(headerRegisterID), req)
	})
}

func (h *handler) upsertCustomer(w http.ResponseWriter, r *http.Request) {
	var req ledger.CustomerRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	h.guarded(w, r, "customers", func(ctx context.Context) (ledger.Response, error) {
		return h.svc.UpsertCustomer(ctx, r.Header.Get(headerRegisterID), req)
	})
}

func (h *handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.svc.Transaction(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.Events(r.Context(), chi.URLParam(r, "subjectID"))
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *handler) stockLevel(w http.ResponseWriter, r *http.Request) {
	location := strings.TrimSpace(r.URL.Query().Get("location"))
	if location == "" {
		responses.WriteError(r.Context(), h.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "location is required"))
		return
	}
	level, err := h.svc.StockLevel(r.Context(), chi.URLParam(r, "itemID"), location)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

// guarded runs apply under the request's idempotency claim. A claim held by
// another in-flight request answers 409 so the register retries later; the
// retry then finds the applied write and gets AlreadySynced.
func (h *handler) guarded(w http.ResponseWriter, r *http.Request, resource string, apply func(context.Context) (ledger.Response, error)) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))

	release := func() {}
	if h.claims != nil && key != "" {
		held, err := h.claims.Claim(ctx, resource, key)
		switch {
		case err != nil:
			h.logg.Warn(h.logg.WithField(ctx, "error", err.Error()), "ledger.claim.unavailable")
		case held:
			responses.WriteError(ctx, h.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "operation already in flight"))
			return
		default:
			release = func() {
				if err := h.claims.Release(context.WithoutCancel(ctx), resource, key); err != nil {
					h.logg.Warn(h.logg.WithField(ctx, "error", err.Error()), "ledger.claim.release_failed")
				}
			}
		}
	}

	// The claim is dropped before answering so a retry never races it.
	resp, err := apply(ctx)
	release()
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	status := http.StatusCreated
	if resp.AlreadySynced {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
