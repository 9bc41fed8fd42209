package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-engine/api/middleware"
	"github.com/angelmondragon/pos-engine/api/responses"
	"github.com/angelmondragon/pos-engine/api/validators"
	"github.com/angelmondragon/pos-engine/internal/shifts"
	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

// ShiftService is the subset of shifts.Service the API needs.
type ShiftService interface {
	Open(ctx context.Context, registerID string, operatorID uuid.UUID, opening decimal.Decimal) (*models.Shift, error)
	Close(ctx context.Context, in shifts.CloseInput) (*models.Shift, error)
	Current(ctx context.Context, registerID string) (*shifts.Summary, error)
	History(ctx context.Context, registerID string, limit int) ([]models.Shift, error)
}

type openShiftRequest struct {
	OpeningBalance decimal.Decimal `json:"openingBalance"`
}

func ShiftsOpen(svc ShiftService, registerID string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req openShiftRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shift, err := svc.Open(r.Context(), registerID, middleware.OperatorIDFromContext(r.Context()), req.OpeningBalance)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, shift)
	}
}

type closeShiftRequest struct {
	ShiftID *uuid.UUID      `json:"shiftId"`
	Counted decimal.Decimal `json:"counted"`
	Notes   string          `json:"notes" validate:"max=500"`
}

// ShiftsClose reconciles the drawer. A non-zero variance is recorded, not rejected.
func ShiftsClose(svc ShiftService, registerID string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req closeShiftRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shift, err := svc.Close(r.Context(), shifts.CloseInput{
			ShiftID:    req.ShiftID,
			RegisterID: registerID,
			OperatorID: middleware.OperatorIDFromContext(r.Context()),
			Counted:    req.Counted,
			Notes:      validators.SanitizeString(req.Notes, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shift)
	}
}

func ShiftsCurrent(svc ShiftService, registerID string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.Current(r.Context(), registerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func ShiftsHistory(svc ShiftService, registerID string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.History(r.Context(), registerID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
