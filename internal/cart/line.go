package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one item on the cart. Derived amounts are recomputed on every mutation
// and kept unrounded; use Display for presentation.
type Line struct {
	ID       uuid.UUID       `json:"id"`
	Item     Item            `json:"item"`
	Quantity decimal.Decimal `json:"quantity"`
	Discount *Discount       `json:"discount,omitempty"`

	Gross             decimal.Decimal `json:"gross"`
	DiscountAmount    decimal.Decimal `json:"discountAmount"`
	CartDiscountShare decimal.Decimal `json:"cartDiscountShare"`
	DiscountedTaxable decimal.Decimal `json:"discountedTaxable"`
	Tax               decimal.Decimal `json:"tax"`
	Total             decimal.Decimal `json:"total"`
}

// priceLine computes the line-scope figures; the cart-discount share is applied later.
func (l *Line) priceLine() {
	l.Gross = l.Quantity.Mul(l.Item.UnitPrice)
	l.DiscountAmount = decimal.Zero
	if l.Discount != nil {
		l.DiscountAmount = l.Discount.amountOn(l.Gross)
	}
	l.CartDiscountShare = decimal.Zero
	l.finish()
}

func (l *Line) finish() {
	l.DiscountedTaxable = l.Gross.Sub(l.DiscountAmount).Sub(l.CartDiscountShare)
	l.Tax = l.DiscountedTaxable.Mul(l.Item.TaxRate)
	l.Total = l.DiscountedTaxable.Add(l.Tax)
}

// netOfLineDiscount is the base cart-scope discounts are allocated against.
func (l *Line) netOfLineDiscount() decimal.Decimal {
	return l.Gross.Sub(l.DiscountAmount)
}

func (l Line) clone() Line {
	out := l
	if l.Discount != nil {
		d := *l.Discount
		out.Discount = &d
	}
	return out
}
