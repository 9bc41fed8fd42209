package cart

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
)

// State is a deep copy of a cart. It is what checkout freezes and what held carts persist.
type State struct {
	ID            uuid.UUID  `json:"id"`
	Lines         []Line     `json:"lines"`
	Customer      *Customer  `json:"customer,omitempty"`
	CartDiscounts []Discount `json:"cartDiscounts,omitempty"`
	Totals        Totals     `json:"totals"`
	OnHold        bool       `json:"onHold"`
	HoldLabel     string     `json:"holdLabel,omitempty"`
	HeldAt        *time.Time `json:"heldAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (s State) IsEmpty() bool {
	return len(s.Lines) == 0
}

// Snapshot deep-copies the current cart.
func (c *Cart) Snapshot() State {
	lines := make([]Line, 0, len(c.lines))
	for _, l := range c.lines {
		lines = append(lines, l.clone())
	}
	var customer *Customer
	if c.customer != nil {
		cp := *c.customer
		customer = &cp
	}
	var discounts []Discount
	if len(c.discounts) > 0 {
		discounts = append([]Discount(nil), c.discounts...)
	}
	return State{
		ID:            c.id,
		Lines:         lines,
		Customer:      customer,
		CartDiscounts: discounts,
		Totals:        c.totals,
		CreatedAt:     c.createdAt,
	}
}

// Restore rebuilds a cart from a snapshot, revalidating inputs and recomputing every
// derived amount. Hold metadata is dropped: a restored cart is always active.
func Restore(s State) (*Cart, error) {
	if s.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart snapshot has no id")
	}
	c := &Cart{id: s.ID, createdAt: s.CreatedAt}
	for _, l := range s.Lines {
		if err := l.Item.validate(); err != nil {
			return nil, err
		}
		if err := checkQuantity(l.Item, l.Quantity); err != nil {
			return nil, err
		}
		if l.Discount != nil {
			if err := l.Discount.validate(enums.DiscountScopeLine); err != nil {
				return nil, err
			}
		}
		line := l.clone()
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		c.lines = append(c.lines, &line)
	}
	for _, d := range s.CartDiscounts {
		if err := d.validate(enums.DiscountScopeCart); err != nil {
			return nil, err
		}
		c.discounts = append(c.discounts, d)
	}
	if s.Customer != nil {
		cp := *s.Customer
		c.customer = &cp
	}
	c.totals = compute(c.lines, c.discounts)
	return c, nil
}
