package cart

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Discount reduces a line (percent or fixed) or the whole cart (percent, fixed or coupon).
type Discount struct {
	ID    uuid.UUID          `json:"id"`
	Kind  enums.DiscountKind `json:"kind"`
	Value decimal.Decimal    `json:"value"`
	Code  string             `json:"code,omitempty"`
}

func (d Discount) validate(scope enums.DiscountScope) error {
	switch d.Kind {
	case enums.DiscountPercent:
		if d.Value.IsNegative() || d.Value.GreaterThan(hundred) {
			return pkgerrors.New(pkgerrors.CodeValidation, "percent discount must be between 0 and 100").
				WithDetails(map[string]any{"value": d.Value.String()})
		}
	case enums.DiscountFixed:
		if d.Value.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "fixed discount must not be negative").
				WithDetails(map[string]any{"value": d.Value.String()})
		}
	case enums.DiscountCoupon:
		if scope != enums.DiscountScopeCart {
			return pkgerrors.New(pkgerrors.CodeValidation, "coupons apply to the whole cart")
		}
		if strings.TrimSpace(d.Code) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
		}
		if d.Value.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "coupon value must not be negative")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown discount kind").
			WithDetails(map[string]any{"kind": string(d.Kind)})
	}
	return nil
}

// amountOn returns the reduction this discount takes from base, clamped to [0, base].
func (d Discount) amountOn(base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	if d.Kind == enums.DiscountPercent {
		amount = base.Mul(d.Value).Div(hundred)
	} else {
		amount = d.Value
	}
	return clamp(amount, decimal.Zero, base)
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
