package transactions

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-engine/pkg/db/models"
)

// ReceiptHeader is printed above every receipt.
type ReceiptHeader struct {
	StoreName  string
	RegisterID string
}

// RenderReceipt lays out txn as fixed-width text. The first line is marked
// with '*' so ESC/POS printers center and embolden it.
func RenderReceipt(txn *models.Transaction, header ReceiptHeader, width int) string {
	if width < 24 {
		width = 24
	}
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	pair := func(left, right string) {
		gap := width - len(left) - len(right)
		if gap < 1 {
			gap = 1
		}
		line(left + strings.Repeat(" ", gap) + right)
	}
	rule := strings.Repeat("-", width)

	if header.StoreName != "" {
		line("*" + header.StoreName)
	}
	pair("Receipt "+txn.ReceiptNumber, txn.CreatedAt.UTC().Format("2006-01-02 15:04"))
	if header.RegisterID != "" {
		line("Register " + header.RegisterID)
	}
	if txn.IsVoided() {
		line("*** VOID ***")
	}
	line(rule)

	for _, l := range txn.Lines {
		pair(truncate(fmt.Sprintf("%s x %s", l.Quantity.String(), l.Name), width-12), money(l.Gross))
		if l.DiscountAmount.IsPositive() {
			pair("  discount", "-"+money(l.DiscountAmount))
		}
	}
	line(rule)

	pair("Subtotal", money(txn.Subtotal))
	if txn.DiscountTotal.IsPositive() {
		pair("Discounts", "-"+money(txn.DiscountTotal))
	}
	pair("Tax", money(txn.TaxTotal))
	pair("TOTAL", money(txn.Total))
	line(rule)

	for _, t := range txn.Tenders {
		label := strings.ReplaceAll(t.Method.String(), "_", " ")
		if t.Reference != "" {
			label += " " + lastFour(t.Reference)
		}
		pair(label, money(t.Amount))
	}
	if txn.ChangeDue.IsPositive() {
		pair("Change", money(txn.ChangeDue))
	}
	return b.String()
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

func lastFour(ref string) string {
	if len(ref) <= 4 {
		return ref
	}
	return "..." + ref[len(ref)-4:]
}
