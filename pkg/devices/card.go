package devices

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/pos-engine/pkg/enums"
	"github.com/angelmondragon/pos-engine/pkg/square"
)

var errNonPositiveCharge = errors.New("charge amount must be positive")

// StubTerminal approves every charge unless Decline is set. It remembers
// approved charges so Reverse can be checked in tests and demos.
type StubTerminal struct {
	Decline error

	mu       sync.Mutex
	charged  map[string]decimal.Decimal
	reversed []string
}

func NewStubTerminal() *StubTerminal {
	return &StubTerminal{charged: map[string]decimal.Decimal{}}
}

func (t *StubTerminal) Charge(_ context.Context, amount decimal.Decimal, reference string) (ChargeResult, error) {
	if !amount.IsPositive() {
		return ChargeResult{}, Wrap("card terminal", errNonPositiveCharge)
	}
	if t.Decline != nil {
		return ChargeResult{}, Wrap("card terminal", t.Decline)
	}
	ref := "stub-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(reference)).String()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.charged == nil {
		t.charged = map[string]decimal.Decimal{}
	}
	t.charged[ref] = amount
	return ChargeResult{Reference: ref}, nil
}

func (t *StubTerminal) Reverse(_ context.Context, reference string, _ decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.charged[reference]; !ok {
		return Wrap("card terminal", errors.New("unknown charge reference"))
	}
	delete(t.charged, reference)
	t.reversed = append(t.reversed, reference)
	return nil
}

// Reversed lists references given back so far.
func (t *StubTerminal) Reversed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.reversed...)
}

type squarePayments interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundParams) (*sq.PaymentRefund, error)
}

// SquareTerminal charges cards through the Square Payments API. The card
// source comes from the reader integration; in sandbox a test nonce is used.
type SquareTerminal struct {
	client   squarePayments
	sourceID string
	currency enums.Currency
}

func NewSquareTerminal(client *square.Client, sourceID string, currency enums.Currency) (*SquareTerminal, error) {
	if client == nil {
		return nil, errors.New("square client is required")
	}
	if strings.TrimSpace(sourceID) == "" {
		return nil, errors.New("square source id is required")
	}
	return &SquareTerminal{client: client, sourceID: sourceID, currency: currency}, nil
}

func (t *SquareTerminal) Charge(ctx context.Context, amount decimal.Decimal, reference string) (ChargeResult, error) {
	if t.currency.ToMinor(amount) <= 0 {
		return ChargeResult{}, Wrap("card terminal", errNonPositiveCharge)
	}
	payment, err := t.client.CreatePayment(ctx, square.PaymentCreateParams{
		Amount:         amount,
		Currency:       t.currency,
		SourceID:       t.sourceID,
		IdempotencyKey: reference,
		ReferenceID:    reference,
	})
	if err != nil {
		return ChargeResult{}, Wrap("card terminal", err)
	}
	id := payment.GetID()
	if id == nil || *id == "" {
		return ChargeResult{}, Wrap("card terminal", errors.New("square returned a payment without id"))
	}
	return ChargeResult{Reference: *id}, nil
}

func (t *SquareTerminal) Reverse(ctx context.Context, reference string, amount decimal.Decimal) error {
	_, err := t.client.RefundPayment(ctx, square.RefundParams{
		PaymentID:      reference,
		Amount:         amount,
		Currency:       t.currency,
		Reason:         "tender removed before sale completed",
		IdempotencyKey: "reverse-" + reference,
	})
	return Wrap("card terminal", err)
}
