package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/pos-engine/api/middleware"
	"github.com/angelmondragon/pos-engine/api/responses"
	"github.com/angelmondragon/pos-engine/api/validators"
	"github.com/angelmondragon/pos-engine/internal/operators"
	pkgAuth "github.com/angelmondragon/pos-engine/pkg/auth"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

// OperatorService is the subset of operators.Service the API needs.
type OperatorService interface {
	Login(ctx context.Context, req operators.LoginRequest) (*operators.LoginResponse, error)
	Logout(ctx context.Context, claims *pkgAuth.AccessTokenClaims) error
	Provision(ctx context.Context, req operators.ProvisionRequest) (*operators.OperatorDTO, error)
	List(ctx context.Context) ([]operators.OperatorDTO, error)
}

func SessionLogin(svc OperatorService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req operators.LoginRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp, err := svc.Login(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

func SessionLogout(svc OperatorService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Logout(r.Context(), middleware.ClaimsFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type sessionView struct {
	OperatorID string `json:"operatorId"`
	RegisterID string `json:"registerId"`
	Role       string `json:"role"`
}

func SessionCurrent(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.ClaimsFromContext(r.Context())
		if claims == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "not signed in"))
			return
		}
		responses.WriteSuccess(w, sessionView{
			OperatorID: claims.OperatorID.String(),
			RegisterID: claims.RegisterID,
			Role:       string(claims.Role),
		})
	}
}

func OperatorsList(svc OperatorService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func OperatorsProvision(svc OperatorService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req operators.ProvisionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		op, err := svc.Provision(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, op)
	}
}
