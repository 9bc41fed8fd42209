package enums

import "fmt"

// TenderMethod is the discriminator of the tender union.
type TenderMethod string

const (
	TenderCash        TenderMethod = "cash"
	TenderCard        TenderMethod = "card"
	TenderGiftCard    TenderMethod = "gift_card"
	TenderStoreCredit TenderMethod = "store_credit"
	TenderCheck       TenderMethod = "check"
	TenderOther       TenderMethod = "other"
)

var validTenderMethods = []TenderMethod{
	TenderCash,
	TenderCard,
	TenderGiftCard,
	TenderStoreCredit,
	TenderCheck,
	TenderOther,
}

// String implements fmt.Stringer.
func (m TenderMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is a known TenderMethod.
func (m TenderMethod) IsValid() bool {
	for _, candidate := range validTenderMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsCash reports whether the tender may exceed the remaining balance and produce change.
func (m TenderMethod) IsCash() bool {
	return m == TenderCash
}

// AcceptsReference reports whether a reference may be attached to this tender kind.
func (m TenderMethod) AcceptsReference() bool {
	switch m {
	case TenderCard, TenderGiftCard, TenderCheck:
		return true
	}
	return false
}

// ParseTenderMethod converts raw input into a TenderMethod.
func ParseTenderMethod(value string) (TenderMethod, error) {
	for _, candidate := range validTenderMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tender method %q", value)
}
