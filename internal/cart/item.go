package cart

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Item is a sellable catalog entry as seen by the register.
type Item struct {
	ID             string          `json:"id" validate:"required,max=64"`
	SKU            string          `json:"sku" validate:"max=64"`
	Name           string          `json:"name" validate:"required,max=200"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	TaxRate        decimal.Decimal `json:"taxRate"`
	WeightRequired bool            `json:"weightRequired"`
}

func (i Item) validate() error {
	if err := validate.Struct(i); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item")
	}
	if i.UnitPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative")
	}
	if i.TaxRate.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "tax rate must not be negative")
	}
	return nil
}

// Customer is attached to a sale for receipts and loyalty lookups.
type Customer struct {
	ID       uuid.UUID `json:"id"`
	RemoteID string    `json:"remoteId,omitempty"`
	Name     string    `json:"name" validate:"required,max=200"`
	Email    string    `json:"email,omitempty" validate:"omitempty,email"`
	Phone    string    `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// Validate checks the customer fields entered at the register.
func (c Customer) Validate() error {
	if err := validate.Struct(c); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer")
	}
	return nil
}

func checkQuantity(item Item, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !item.WeightRequired && !qty.Equal(qty.Truncate(0)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be a whole number for non-weighed items").
			WithDetails(map[string]any{"itemId": item.ID, "quantity": qty.String()})
	}
	return nil
}
