package checkout

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
)

// DefaultEpsilon is the largest unpaid balance a sale may finalize with.
var DefaultEpsilon = decimal.RequireFromString("0.01")

// BalanceDetail is returned to callers when a sale cannot settle yet.
type BalanceDetail struct {
	Total     decimal.Decimal `json:"total"`
	Tendered  decimal.Decimal `json:"tendered"`
	Remaining decimal.Decimal `json:"remaining"`
	Epsilon   decimal.Decimal `json:"epsilon"`
}

// Remaining is max(0, total - tendered).
func Remaining(total, tendered decimal.Decimal) decimal.Decimal {
	r := total.Sub(tendered)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// ValidateSettlement ensures the unpaid balance is within epsilon.
func ValidateSettlement(total, tendered, epsilon decimal.Decimal) error {
	remaining := Remaining(total, tendered)
	if remaining.LessThanOrEqual(epsilon) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "tenders do not cover the sale total").WithDetails(BalanceDetail{
		Total:     total,
		Tendered:  tendered,
		Remaining: remaining,
		Epsilon:   epsilon,
	})
}

// ChangeDue is what goes back to the customer: the overpayment, capped at the
// cash handed over since only cash can be overpaid.
func ChangeDue(total, tendered, cashTendered decimal.Decimal) decimal.Decimal {
	over := tendered.Sub(total)
	if !over.IsPositive() || !cashTendered.IsPositive() {
		return decimal.Zero
	}
	if over.GreaterThan(cashTendered) {
		return cashTendered
	}
	return over
}
