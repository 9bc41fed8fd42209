package checkout

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
)

// TenderStatus records what happened to a tender after it was accepted.
type TenderStatus string

const (
	TenderAccepted TenderStatus = "accepted"
	TenderReversed TenderStatus = "reversed"
)

// Tender is one payment leg. Reference is only carried by card, gift card and
// check tenders.
type Tender struct {
	ID        uuid.UUID          `json:"id"`
	Method    enums.TenderMethod `json:"method"`
	Amount    decimal.Decimal    `json:"amount"`
	Reference string             `json:"reference,omitempty"`
	Status    TenderStatus       `json:"status"`
	CreatedAt time.Time          `json:"createdAt"`
}

// TenderInput is what the operator keys in.
type TenderInput struct {
	Method    enums.TenderMethod
	Amount    decimal.Decimal
	Reference string
}

func (in TenderInput) validate() error {
	if !in.Method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown tender method").
			WithDetails(map[string]any{"method": string(in.Method)})
	}
	if !in.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "tender amount must be positive")
	}
	if strings.TrimSpace(in.Reference) != "" && !in.Method.AcceptsReference() {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference is not accepted for this tender").
			WithDetails(map[string]any{"method": string(in.Method)})
	}
	return nil
}

func sumTenders(tenders []Tender) (total, cash decimal.Decimal) {
	for _, t := range tenders {
		total = total.Add(t.Amount)
		if t.Method.IsCash() {
			cash = cash.Add(t.Amount)
		}
	}
	return total, cash
}
