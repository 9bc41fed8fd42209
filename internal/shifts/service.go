package shifts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-engine/pkg/db"
	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/logger"
	"github.com/angelmondragon/pos-engine/pkg/metrics"
)

var (
	ErrNoOpenShift      = pkgerrors.New(pkgerrors.CodeNotFound, "no open shift")
	ErrShiftNotOpen     = pkgerrors.New(pkgerrors.CodeStateConflict, "shift is not open")
	ErrOperatorMismatch = pkgerrors.New(pkgerrors.CodeForbidden, "shift belongs to another operator")
)

// CashFeed reports the drawer cash taken by an operator since a point in time.
type CashFeed interface {
	CashCollected(ctx context.Context, registerID string, operatorID uuid.UUID, since time.Time) (decimal.Decimal, error)
}

type ServiceParams struct {
	Repo    Repository
	Feed    CashFeed
	Logger  *logger.Logger
	Metrics *metrics.ShiftMetrics
	Now     func() time.Time
}

// Service tracks cash drawer custody across shift open and close.
type Service struct {
	repo    Repository
	feed    CashFeed
	logg    *logger.Logger
	metrics *metrics.ShiftMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("shift repository is required")
	}
	if params.Feed == nil {
		return nil, errors.New("cash feed is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		repo:    params.Repo,
		feed:    params.Feed,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     params.Now,
	}, nil
}

// Open starts a shift. An operator and a register each hold at most one open shift.
func (s *Service) Open(ctx context.Context, registerID string, operatorID uuid.UUID, opening decimal.Decimal) (*models.Shift, error) {
	if strings.TrimSpace(registerID) == "" || operatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "register and operator are required")
	}
	if opening.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "opening balance must not be negative")
	}

	existing, err := s.repo.FindOpenByOperator(ctx, operatorID)
	if err != nil {
		return nil, storageError(err, "load operator shift")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "operator already has an open shift").
			WithDetails(map[string]any{"shiftId": existing.ID, "registerId": existing.RegisterID})
	}
	existing, err = s.repo.FindOpenByRegister(ctx, registerID)
	if err != nil {
		return nil, storageError(err, "load register shift")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "register already has an open shift").
			WithDetails(map[string]any{"shiftId": existing.ID, "operatorId": existing.OperatorID})
	}

	shift := &models.Shift{
		ID:             uuid.New(),
		RegisterID:     registerID,
		OperatorID:     operatorID,
		Status:         enums.ShiftOpen,
		OpeningBalance: opening,
		StartedAt:      s.now().UTC(),
	}
	if err := s.repo.Create(ctx, shift); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "shift already open")
		}
		return nil, storageError(err, "open shift")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"shift_id":        shift.ID,
		"register_id":     registerID,
		"operator_id":     operatorID,
		"opening_balance": opening.StringFixed(2),
	}), "shift opened")
	return shift, nil
}

// CloseInput identifies the shift by id or, when ShiftID is nil, by register.
type CloseInput struct {
	ShiftID    *uuid.UUID
	RegisterID string
	OperatorID uuid.UUID
	Counted    decimal.Decimal
	Notes      string
}

// Close ends a shift and records expected cash and variance. A variance never
// blocks the close.
func (s *Service) Close(ctx context.Context, in CloseInput) (*models.Shift, error) {
	if in.Counted.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "counted cash must not be negative")
	}
	shift, err := s.locate(ctx, in.ShiftID, in.RegisterID)
	if err != nil {
		return nil, err
	}
	if !shift.IsOpen() {
		return nil, ErrShiftNotOpen
	}
	if shift.OperatorID != in.OperatorID {
		return nil, ErrOperatorMismatch
	}

	expected, err := s.expectedCash(ctx, shift)
	if err != nil {
		return nil, err
	}
	variance := in.Counted.Sub(expected)
	ended := s.now().UTC()
	counted := in.Counted

	shift.ClosingBalance = &counted
	shift.ExpectedCash = &expected
	shift.Variance = &variance
	shift.EndedAt = &ended
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		shift.Notes = &notes
	}
	ok, err := s.repo.Close(ctx, shift)
	if err != nil {
		return nil, storageError(err, "close shift")
	}
	if !ok {
		return nil, ErrShiftNotOpen
	}
	shift.Status = enums.ShiftClosed
	s.metrics.ObserveVariance(shift.RegisterID, variance)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"shift_id":      shift.ID,
		"expected_cash": expected.StringFixed(2),
		"counted_cash":  counted.StringFixed(2),
		"variance":      variance.StringFixed(2),
	})
	if variance.IsZero() {
		s.logg.Info(logCtx, "shift closed")
	} else {
		s.logg.Warn(logCtx, "shift closed with variance")
	}
	return shift, nil
}

// Summary is a live view of an open shift.
type Summary struct {
	Shift        *models.Shift   `json:"shift"`
	CashSales    decimal.Decimal `json:"cashSales"`
	ExpectedCash decimal.Decimal `json:"expectedCash"`
}

// Current returns the open shift of a register with its running expected cash.
func (s *Service) Current(ctx context.Context, registerID string) (*Summary, error) {
	shift, err := s.repo.FindOpenByRegister(ctx, registerID)
	if err != nil {
		return nil, storageError(err, "load register shift")
	}
	if shift == nil {
		return nil, ErrNoOpenShift
	}
	expected, err := s.expectedCash(ctx, shift)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Shift:        shift,
		CashSales:    expected.Sub(shift.OpeningBalance),
		ExpectedCash: expected,
	}, nil
}

// HasOpenShift reports whether the operator is still responsible for a drawer.
func (s *Service) HasOpenShift(ctx context.Context, operatorID uuid.UUID) (bool, error) {
	shift, err := s.repo.FindOpenByOperator(ctx, operatorID)
	if err != nil {
		return false, storageError(err, "load operator shift")
	}
	return shift != nil, nil
}

// OpenShiftFor returns the operator's open shift, if any.
func (s *Service) OpenShiftFor(ctx context.Context, operatorID uuid.UUID) (*models.Shift, error) {
	shift, err := s.repo.FindOpenByOperator(ctx, operatorID)
	if err != nil {
		return nil, storageError(err, "load operator shift")
	}
	return shift, nil
}

func (s *Service) History(ctx context.Context, registerID string, limit int) ([]models.Shift, error) {
	rows, err := s.repo.List(ctx, registerID, limit)
	if err != nil {
		return nil, storageError(err, "list shifts")
	}
	return rows, nil
}

func (s *Service) locate(ctx context.Context, shiftID *uuid.UUID, registerID string) (*models.Shift, error) {
	var (
		shift *models.Shift
		err   error
	)
	if shiftID != nil {
		shift, err = s.repo.FindByID(ctx, *shiftID)
	} else {
		shift, err = s.repo.FindOpenByRegister(ctx, registerID)
	}
	if err != nil {
		return nil, storageError(err, "load shift")
	}
	if shift == nil {
		return nil, ErrNoOpenShift
	}
	return shift, nil
}

func (s *Service) expectedCash(ctx context.Context, shift *models.Shift) (decimal.Decimal, error) {
	cash, err := s.feed.CashCollected(ctx, shift.RegisterID, shift.OperatorID, shift.StartedAt)
	if err != nil {
		return decimal.Zero, err
	}
	return shift.OpeningBalance.Add(cash), nil
}

func storageError(err error, op string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, fmt.Sprintf("%s failed", op))
}
