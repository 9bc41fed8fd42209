package square

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/pos-engine/pkg/enums"
)

// Square rejects idempotency keys longer than this.
const maxIdempotencyKeyLen = 45

// PaymentCreateParams describes one card charge for a tender.
type PaymentCreateParams struct {
	Amount         decimal.Decimal
	Currency       enums.Currency
	LocationID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	// ReferenceID shows up on the Square dashboard; the register uses the tender id.
	ReferenceID string
}

func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	return &sq.CreatePaymentRequest{
		IdempotencyKey: fitIdempotencyKey(idempotencyKey),
		LocationID:     optional(p.LocationID),
		SourceID:       p.SourceID,
		AmountMoney:    money(p.Amount, p.Currency),
		Note:           optional(p.Note),
		ReferenceID:    optional(p.ReferenceID),
	}
}

// RefundParams gives back a card tender removed before the sale completed.
type RefundParams struct {
	PaymentID      string
	Amount         decimal.Decimal
	Currency       enums.Currency
	Reason         string
	IdempotencyKey string
}

func (p RefundParams) toSquareRequest(idempotencyKey string) *sq.RefundPaymentRequest {
	return &sq.RefundPaymentRequest{
		IdempotencyKey: fitIdempotencyKey(idempotencyKey),
		AmountMoney:    money(p.Amount, p.Currency),
		PaymentID:      optional(p.PaymentID),
		Reason:         optional(p.Reason),
	}
}

// fitIdempotencyKey hashes keys that are too long for Square so a retry of
// the same tender still maps to the same key.
func fitIdempotencyKey(key string) string {
	if len(key) <= maxIdempotencyKeyLen {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:maxIdempotencyKeyLen]
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func money(amount decimal.Decimal, currency enums.Currency) *sq.Money {
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	minor := currency.ToMinor(amount)
	if minor == 0 {
		return nil
	}
	code := sq.Currency(currency.String())
	return &sq.Money{Amount: &minor, Currency: &code}
}
