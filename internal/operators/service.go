// Package operators signs cashiers and managers in and out of a register.
package operators

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgAuth "github.com/angelmondragon/pos-engine/pkg/auth"
	"github.com/angelmondragon/pos-engine/pkg/auth/session"
	"github.com/angelmondragon/pos-engine/pkg/config"
	"github.com/angelmondragon/pos-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/logger"
	"github.com/angelmondragon/pos-engine/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

var (
	ErrShiftStillOpen  = pkgerrors.New(pkgerrors.CodeStateConflict, "close the open shift before signing out")
	ErrTooManyAttempts = pkgerrors.New(pkgerrors.CodeForbidden, "too many PIN attempts, try again shortly")
)

type operatorRepository interface {
	Create(ctx context.Context, op *models.Operator) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Operator, error)
	ListActive(ctx context.Context) ([]models.Operator, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type sessionManager interface {
	Start(ctx context.Context, sessionID string, rec session.Record) error
	End(ctx context.Context, sessionID string) error
	HasSession(ctx context.Context, sessionID string) (bool, error)
}

// ShiftChecker reports whether an operator still holds a drawer.
type ShiftChecker interface {
	HasOpenShift(ctx context.Context, operatorID uuid.UUID) (bool, error)
}

// Limiter throttles login attempts by key. Nil disables throttling.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// ServiceParams bundles the dependencies required to build an operator service.
type ServiceParams struct {
	Repo       operatorRepository
	Sessions   sessionManager
	Shifts     ShiftChecker
	Limiter    Limiter
	JWTConfig  config.JWTConfig
	Password   config.PasswordConfig
	RegisterID string
	Logger     *logger.Logger
	Now        func() time.Time
}

type Service struct {
	repo       operatorRepository
	sessions   sessionManager
	shifts     ShiftChecker
	limiter    Limiter
	jwtCfg     config.JWTConfig
	pwCfg      config.PasswordConfig
	registerID string
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("operator repository is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if params.Shifts == nil {
		return nil, fmt.Errorf("shift checker is required")
	}
	if strings.TrimSpace(params.RegisterID) == "" {
		return nil, fmt.Errorf("register id is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		repo:       params.Repo,
		sessions:   params.Sessions,
		shifts:     params.Shifts,
		limiter:    params.Limiter,
		jwtCfg:     params.JWTConfig,
		pwCfg:      params.Password,
		registerID: params.RegisterID,
		logg:       params.Logger,
		now:        params.Now,
	}, nil
}

// Provision creates an operator with a hashed PIN.
func (s *Service) Provision(ctx context.Context, req ProvisionRequest) (*OperatorDTO, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "operator name is required")
	}
	if !req.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid operator role")
	}
	hash, err := security.HashPIN(req.PIN, s.pwCfg)
	if err != nil {
		if errors.Is(err, security.ErrInvalidPIN) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pin")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash pin")
	}
	now := s.now().UTC()
	op := &models.Operator{
		ID:        uuid.New(),
		Name:      name,
		Role:      req.Role,
		PINHash:   hash,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, op); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "create operator")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"operator_id": op.ID, "role": op.Role}), "operator provisioned")
	return FromModel(op), nil
}

// List returns operators shown on the sign-in screen.
func (s *Service) List(ctx context.Context) ([]OperatorDTO, error) {
	ops, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "list operators")
	}
	out := make([]OperatorDTO, 0, len(ops))
	for i := range ops {
		out = append(out, *FromModel(&ops[i]))
	}
	return out, nil
}

// Login checks the PIN, mints a token and starts the server-side session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if req.OperatorID == uuid.Nil || security.ValidatePIN(req.PIN) != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, req.OperatorID.String())
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "login limiter unavailable")
		} else if !ok {
			return nil, ErrTooManyAttempts
		}
	}

	op, err := s.authenticate(ctx, req.OperatorID, req.PIN)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sessionID := session.NewSessionID()
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		OperatorID: op.ID,
		RegisterID: s.registerID,
		Role:       op.Role,
		SessionID:  sessionID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if err := s.sessions.Start(ctx, sessionID, session.Record{
		OperatorID: op.ID.String(),
		Role:       op.Role.String(),
		StartedAt:  now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store session")
	}
	if err := s.repo.UpdateLastLogin(ctx, op.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "update last login")
	}
	op.LastLoginAt = &now

	s.logg.Info(s.logg.WithOperatorID(ctx, op.ID.String()), "operator signed in")
	return &LoginResponse{
		AccessToken: token,
		ExpiresAt:   now.Add(s.jwtCfg.Expiration()),
		Operator:    FromModel(op),
	}, nil
}

// Logout revokes the session. It is refused while the operator still has an
// open shift so the drawer is always reconciled by whoever opened it.
func (s *Service) Logout(ctx context.Context, claims *pkgAuth.AccessTokenClaims) error {
	if claims == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "not signed in")
	}
	open, err := s.shifts.HasOpenShift(ctx, claims.OperatorID)
	if err != nil {
		return err
	}
	if open {
		return ErrShiftStillOpen
	}
	if err := s.sessions.End(ctx, claims.SessionID()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	s.logg.Info(s.logg.WithOperatorID(ctx, claims.OperatorID.String()), "operator signed out")
	return nil
}

// Authorize validates a bearer token and its server-side session.
func (s *Service) Authorize(ctx context.Context, token string) (*pkgAuth.AccessTokenClaims, error) {
	claims, err := pkgAuth.ParseAccessToken(s.jwtCfg, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.RegisterID != s.registerID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "token was issued for another register")
	}
	ok, err := s.sessions.HasSession(ctx, claims.SessionID())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check session")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired")
	}
	return claims, nil
}

func (s *Service) authenticate(ctx context.Context, id uuid.UUID, pin string) (*models.Operator, error) {
	op, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "lookup operator")
	}
	valid, err := security.VerifyPIN(pin, op.PINHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify pin")
	}
	if !valid || !op.Active {
		s.logg.Warn(s.logg.WithOperatorID(ctx, id.String()), "pin rejected")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return op, nil
}
