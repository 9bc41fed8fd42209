package cart

import "github.com/shopspring/decimal"

// Totals are the cart-level aggregates. Total always equals Subtotal - DiscountTotal + TaxTotal.
type Totals struct {
	Subtotal          decimal.Decimal `json:"subtotal"`
	LineDiscountTotal decimal.Decimal `json:"lineDiscountTotal"`
	CartDiscountTotal decimal.Decimal `json:"cartDiscountTotal"`
	DiscountTotal     decimal.Decimal `json:"discountTotal"`
	TaxTotal          decimal.Decimal `json:"taxTotal"`
	Total             decimal.Decimal `json:"total"`
	ItemCount         decimal.Decimal `json:"itemCount"`
	LineCount         int             `json:"lineCount"`
}

// Display rounds a stored amount to cents, half away from zero. Storage stays unrounded.
func Display(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// DisplayString formats an amount with exactly two decimals.
func DisplayString(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// compute runs the full pricing pass: line discounts, then cart discounts allocated
// pro-rata across lines, then tax on the reduced base.
func compute(lines []*Line, discounts []Discount) Totals {
	var totals Totals
	base := decimal.Zero
	for _, l := range lines {
		l.priceLine()
		base = base.Add(l.netOfLineDiscount())
	}

	remaining := base
	cartDiscount := decimal.Zero
	for _, d := range discounts {
		amount := d.amountOn(remaining)
		cartDiscount = cartDiscount.Add(amount)
		remaining = remaining.Sub(amount)
	}
	allocate(lines, cartDiscount, base)

	for _, l := range lines {
		totals.Subtotal = totals.Subtotal.Add(l.Gross)
		totals.LineDiscountTotal = totals.LineDiscountTotal.Add(l.DiscountAmount)
		totals.TaxTotal = totals.TaxTotal.Add(l.Tax)
		totals.ItemCount = totals.ItemCount.Add(l.Quantity)
	}
	totals.CartDiscountTotal = cartDiscount
	totals.DiscountTotal = totals.LineDiscountTotal.Add(cartDiscount)
	totals.Total = totals.Subtotal.Sub(totals.DiscountTotal).Add(totals.TaxTotal)
	totals.LineCount = len(lines)
	return totals
}

// allocate spreads amount over lines weighted by their post-line-discount value.
// The last weighted line absorbs the division remainder so shares sum exactly.
func allocate(lines []*Line, amount, base decimal.Decimal) {
	if !amount.IsPositive() || !base.IsPositive() {
		return
	}
	last := -1
	for i, l := range lines {
		if l.netOfLineDiscount().IsPositive() {
			last = i
		}
	}
	allocated := decimal.Zero
	for i, l := range lines {
		weight := l.netOfLineDiscount()
		if !weight.IsPositive() {
			continue
		}
		share := amount.Mul(weight).Div(base)
		if i == last {
			share = amount.Sub(allocated)
		}
		allocated = allocated.Add(share)
		l.CartDiscountShare = share
		l.finish()
	}
}
