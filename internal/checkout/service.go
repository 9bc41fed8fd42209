package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-engine/internal/cart"
	tenderpolicy "github.com/angelmondragon/pos-engine/pkg/checkout"
	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/devices"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/logger"
	"github.com/angelmondragon/pos-engine/pkg/metrics"
)

var ErrEmptyCart = pkgerrors.New(pkgerrors.CodeValidation, "cannot check out an empty cart")

// Recorder durably stores a completed sale and queues it for the ledger.
// Record must be idempotent by transaction id.
type Recorder interface {
	Record(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	RenderReceipt(txn *models.Transaction) string
}

type ServiceParams struct {
	Recorder         Recorder
	Devices          devices.Set
	Epsilon          *decimal.Decimal
	Currency         enums.Currency
	OpenDrawerOnCash bool
	Logger           *logger.Logger
	Metrics          *metrics.CheckoutMetrics
	Now              func() time.Time
}

// Service starts checkout sessions against frozen cart snapshots.
type Service struct {
	recorder         Recorder
	devices          devices.Set
	epsilon          decimal.Decimal
	currency         enums.Currency
	openDrawerOnCash bool
	logg             *logger.Logger
	metrics          *metrics.CheckoutMetrics
	now              func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Recorder == nil {
		return nil, errors.New("transaction recorder is required")
	}
	epsilon := tenderpolicy.DefaultEpsilon
	if params.Epsilon != nil {
		if params.Epsilon.IsNegative() {
			return nil, errors.New("balance epsilon must not be negative")
		}
		epsilon = *params.Epsilon
	}
	if params.Currency == "" {
		params.Currency = enums.CurrencyUSD
	}
	if !params.Currency.IsValid() {
		return nil, errors.New("unsupported currency")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		recorder:         params.Recorder,
		devices:          params.Devices,
		epsilon:          epsilon,
		currency:         params.Currency,
		openDrawerOnCash: params.OpenDrawerOnCash,
		logg:             params.Logger,
		metrics:          params.Metrics,
		now:              params.Now,
	}, nil
}

// Epsilon is the unpaid balance tolerated at finalize.
func (s *Service) Epsilon() decimal.Decimal {
	return s.epsilon
}

// Context identifies who is selling where.
type Context struct {
	RegisterID string
	OperatorID uuid.UUID
	ShiftID    *uuid.UUID
}

// Begin freezes snapshot and opens a session in the collecting state. Later
// changes to the live cart do not reach the session.
func (s *Service) Begin(ctx context.Context, snapshot cart.State, who Context) (*Session, error) {
	if snapshot.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if who.OperatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "an operator must be signed in to check out")
	}
	sess := &Session{
		svc:       s,
		id:        uuid.New(),
		who:       who,
		cart:      deepCopy(snapshot),
		state:     enums.CheckoutCollecting,
		startedAt: s.now().UTC(),
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"checkout_id": sess.id,
		"cart_id":     snapshot.ID,
		"total":       snapshot.Totals.Total.StringFixed(2),
	}), "checkout started")
	return sess, nil
}

// deepCopy detaches a snapshot from any slices it shares with its source.
func deepCopy(in cart.State) cart.State {
	out := in
	out.Lines = make([]cart.Line, len(in.Lines))
	for i, l := range in.Lines {
		out.Lines[i] = l
		if l.Discount != nil {
			d := *l.Discount
			out.Lines[i].Discount = &d
		}
	}
	if in.Customer != nil {
		c := *in.Customer
		out.Customer = &c
	}
	out.CartDiscounts = append([]cart.Discount(nil), in.CartDiscounts...)
	return out
}
