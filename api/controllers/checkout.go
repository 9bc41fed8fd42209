package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-engine/api/middleware"
	"github.com/angelmondragon/pos-engine/api/responses"
	"github.com/angelmondragon/pos-engine/api/validators"
	"github.com/angelmondragon/pos-engine/internal/checkout"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

// CheckoutRegister is the checkout surface of the register.
type CheckoutRegister interface {
	BeginCheckout(ctx context.Context, operatorID uuid.UUID) (*checkout.Session, error)
	Checkout() (*checkout.Session, error)
	AddTender(ctx context.Context, in checkout.TenderInput) (checkout.Tender, error)
	RemoveTender(ctx context.Context, tenderID uuid.UUID) error
	Finalize(ctx context.Context) (*checkout.Result, error)
	AbortCheckout(ctx context.Context) error
}

// CheckoutBegin freezes the active cart. Calling it again while a checkout is
// open returns the open one.
func CheckoutBegin(reg CheckoutRegister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := reg.BeginCheckout(r.Context(), middleware.OperatorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sess.View())
	}
}

func CheckoutGet(reg CheckoutRegister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := reg.Checkout()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess.View())
	}
}

type tenderRequest struct {
	Method    enums.TenderMethod `json:"method" validate:"required"`
	Amount    decimal.Decimal    `json:"amount"`
	Reference string             `json:"reference" validate:"max=64"`
}

type tenderResponse struct {
	Tender   checkout.Tender `json:"tender"`
	Checkout checkout.View   `json:"checkout"`
}

// CheckoutAddTender charges card tenders on the terminal before accepting them.
func CheckoutAddTender(reg CheckoutRegister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tenderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tender, err := reg.AddTender(r.Context(), checkout.TenderInput{
			Method:    req.Method,
			Amount:    req.Amount,
			Reference: validators.SanitizeString(req.Reference, 64),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCheckout(w, r, reg, logg, http.StatusCreated, tenderResponse{Tender: tender})
	}
}

func CheckoutRemoveTender(reg CheckoutRegister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenderID, err := validators.ParseUUIDParam(r, "tenderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := reg.RemoveTender(r.Context(), tenderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sess, err := reg.Checkout()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sess.View())
	}
}

// CheckoutFinalize stores the sale. Retrying after a storage error is safe:
// the checkout id doubles as the transaction id.
func CheckoutFinalize(reg CheckoutRegister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := reg.Finalize(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, res)
	}
}

func CheckoutAbort(reg CheckoutRegister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := reg.AbortCheckout(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeCheckout(w http.ResponseWriter, r *http.Request, reg CheckoutRegister, logg *logger.Logger, status int, resp tenderResponse) {
	sess, err := reg.Checkout()
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	resp.Checkout = sess.View()
	responses.WriteSuccessStatus(w, status, resp)
}
