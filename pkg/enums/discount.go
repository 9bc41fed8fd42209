package enums

import "fmt"

// DiscountKind describes how a discount value is interpreted.
type DiscountKind string

const (
	DiscountPercent DiscountKind = "percent"
	DiscountFixed   DiscountKind = "fixed"
	// DiscountCoupon is a fixed amount identified by a code; only valid at cart scope.
	DiscountCoupon DiscountKind = "coupon"
)

var validDiscountKinds = []DiscountKind{
	DiscountPercent,
	DiscountFixed,
	DiscountCoupon,
}

func (k DiscountKind) String() string {
	return string(k)
}

func (k DiscountKind) IsValid() bool {
	for _, candidate := range validDiscountKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseDiscountKind converts raw input into a DiscountKind.
func ParseDiscountKind(value string) (DiscountKind, error) {
	for _, candidate := range validDiscountKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid discount kind %q", value)
}

// DiscountScope says whether a discount targets one line or the whole cart.
type DiscountScope string

const (
	DiscountScopeLine DiscountScope = "line"
	DiscountScopeCart DiscountScope = "cart"
)

func (s DiscountScope) IsValid() bool {
	return s == DiscountScopeLine || s == DiscountScopeCart
}
