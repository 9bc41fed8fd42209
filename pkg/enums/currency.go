package enums

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the ISO code recorded on transactions and card charges.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyCAD Currency = "CAD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyMXN Currency = "MXN"
	CurrencyJPY Currency = "JPY"
)

// minorUnits is the number of decimal places card processors expect.
var minorUnits = map[Currency]int32{
	CurrencyUSD: 2,
	CurrencyCAD: 2,
	CurrencyEUR: 2,
	CurrencyGBP: 2,
	CurrencyMXN: 2,
	CurrencyJPY: 0,
}

func (c Currency) String() string {
	return string(c)
}

func (c Currency) IsValid() bool {
	_, ok := minorUnits[c]
	return ok
}

// MinorUnits returns the currency's decimal places, 2 when unknown.
func (c Currency) MinorUnits() int32 {
	if units, ok := minorUnits[c]; ok {
		return units
	}
	return 2
}

// ToMinor converts amount to integer minor units, rounding half away from zero.
func (c Currency) ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(c.MinorUnits()).Round(0).IntPart()
}

// ParseCurrency accepts an ISO code in any case.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid currency %q", value)
	}
	return c, nil
}
