package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/pos-engine/api/middleware"
	"github.com/angelmondragon/pos-engine/api/responses"
	"github.com/angelmondragon/pos-engine/api/validators"
	"github.com/angelmondragon/pos-engine/internal/transactions"
	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/logger"
	"github.com/angelmondragon/pos-engine/pkg/pagination"
)

// TransactionService is the subset of transactions.Service the API needs.
type TransactionService interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	List(ctx context.Context, filter transactions.ListFilter) (pagination.Page[models.Transaction], error)
	Receipt(ctx context.Context, id uuid.UUID) (string, error)
	Void(ctx context.Context, id, operatorID uuid.UUID, reason string) (*models.Transaction, error)
}

func TransactionsList(svc TransactionService, registerID string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := transactions.ListFilter{RegisterID: registerID}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.Limit = limit

		if filter.Cursor, err = pagination.ParseCursor(r.URL.Query().Get("cursor")); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor").
				WithDetails(map[string]any{"field": "cursor"}))
			return
		}

		if filter.ShiftID, err = validators.ParseQueryUUID(r, "shiftId"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.OperatorID, err = validators.ParseQueryUUID(r, "operatorId"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.Since, err = validators.ParseQueryTime(r, "since"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := enums.TransactionStatus(raw)
			if !status.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown transaction status").
					WithDetails(map[string]any{"field": "status"}))
				return
			}
			filter.Status = &status
		}

		page, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func TransactionsGet(svc TransactionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "transactionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

// TransactionsReceipt returns the rendered receipt as plain text for reprints.
func TransactionsReceipt(svc TransactionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "transactionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		receipt, err := svc.Receipt(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteText(w, receipt)
	}
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=200"`
}

func TransactionsVoid(svc TransactionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "transactionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req voidRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.Void(r.Context(), id, middleware.OperatorIDFromContext(r.Context()), validators.SanitizeString(req.Reason, 200))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}
