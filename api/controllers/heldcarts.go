package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/pos-engine/api/middleware"
	"github.com/angelmondragon/pos-engine/api/responses"
	"github.com/angelmondragon/pos-engine/api/validators"
	"github.com/angelmondragon/pos-engine/internal/cart"
	"github.com/angelmondragon/pos-engine/internal/heldcarts"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

// HeldCartRegister is the hold and recall surface of the register.
type HeldCartRegister interface {
	Cart() cart.State
	Hold(ctx context.Context, label string, operatorID uuid.UUID) (*heldcarts.Summary, error)
	Recall(ctx context.Context, cartID uuid.UUID, operatorID uuid.UUID) (*heldcarts.Summary, error)
	HeldCarts(ctx context.Context) ([]heldcarts.Summary, error)
	DiscardHeld(ctx context.Context, cartID uuid.UUID) error
}

func HeldCartsList(reg HeldCartRegister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := reg.HeldCarts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

type holdRequest struct {
	Label string `json:"label" validate:"max=80"`
}

func HeldCartsHold(reg HeldCartRegister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req holdRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := reg.Hold(r.Context(), validators.SanitizeString(req.Label, 80), middleware.OperatorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, summary)
	}
}

type recallResponse struct {
	Cart cart.State `json:"cart"`
	// AutoHeld is set when a non-empty active cart was held to make room.
	AutoHeld *heldcarts.Summary `json:"autoHeld,omitempty"`
}

func HeldCartsRecall(reg HeldCartRegister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := validators.ParseUUIDParam(r, "cartID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		autoHeld, err := reg.Recall(r.Context(), cartID, middleware.OperatorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, recallResponse{Cart: reg.Cart(), AutoHeld: autoHeld})
	}
}

func HeldCartsDiscard(reg HeldCartRegister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, err := validators.ParseUUIDParam(r, "cartID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := reg.DiscardHeld(r.Context(), cartID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
