package cart

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
)

var (
	ErrLineNotFound     = pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	ErrDiscountNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "cart discount not found")
)

// Listener receives a snapshot after every successful mutation.
type Listener func(State)

// Cart is the single active sale on a register. It performs no I/O; every
// mutation is synchronous and ends with a full recomputation. A Cart is owned by
// one session and is not safe for concurrent mutation.
type Cart struct {
	id        uuid.UUID
	createdAt time.Time
	lines     []*Line
	customer  *Customer
	discounts []Discount
	totals    Totals

	mu        sync.Mutex
	listeners map[int]Listener
	nextSub   int
}

// New returns an empty cart with a fresh identity.
func New() *Cart {
	c := &Cart{id: uuid.New(), createdAt: time.Now().UTC()}
	c.totals = compute(nil, nil)
	return c
}

func (c *Cart) ID() uuid.UUID {
	return c.id
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) Totals() Totals {
	return c.totals
}

// Line returns a copy of the line with the given id.
func (c *Cart) Line(lineID uuid.UUID) (Line, error) {
	idx := c.indexOf(lineID)
	if idx < 0 {
		return Line{}, ErrLineNotFound
	}
	return c.lines[idx].clone(), nil
}

// AddItem adds one unit of item, merging into an existing line for the same item.
func (c *Cart) AddItem(item Item) (Line, error) {
	return c.AddItemQty(item, decimal.NewFromInt(1))
}

// AddItemQty adds qty of item. Lines are merged by item id.
func (c *Cart) AddItemQty(item Item, qty decimal.Decimal) (Line, error) {
	if err := item.validate(); err != nil {
		return Line{}, err
	}
	if err := checkQuantity(item, qty); err != nil {
		return Line{}, err
	}

	var line *Line
	for _, l := range c.lines {
		if l.Item.ID == item.ID {
			line = l
			break
		}
	}
	if line != nil {
		line.Quantity = line.Quantity.Add(qty)
	} else {
		line = &Line{ID: uuid.New(), Item: item, Quantity: qty}
		c.lines = append(c.lines, line)
	}
	c.changed()
	return line.clone(), nil
}

// SetQuantity replaces a line's quantity; zero or negative removes the line.
func (c *Cart) SetQuantity(lineID uuid.UUID, qty decimal.Decimal) error {
	idx := c.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	if !qty.IsPositive() {
		c.removeAt(idx)
		c.changed()
		return nil
	}
	if err := checkQuantity(c.lines[idx].Item, qty); err != nil {
		return err
	}
	c.lines[idx].Quantity = qty
	c.changed()
	return nil
}

func (c *Cart) RemoveLine(lineID uuid.UUID) error {
	idx := c.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.removeAt(idx)
	c.changed()
	return nil
}

// SetLineDiscount puts a percent or fixed discount on a line, replacing any previous one.
func (c *Cart) SetLineDiscount(lineID uuid.UUID, kind enums.DiscountKind, value decimal.Decimal) error {
	idx := c.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	d := Discount{ID: uuid.New(), Kind: kind, Value: value}
	if err := d.validate(enums.DiscountScopeLine); err != nil {
		return err
	}
	c.lines[idx].Discount = &d
	c.changed()
	return nil
}

func (c *Cart) ClearLineDiscount(lineID uuid.UUID) error {
	idx := c.indexOf(lineID)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.lines[idx].Discount = nil
	c.changed()
	return nil
}

// ApplyCartDiscount adds a cart-scope discount. Cart discounts stack in the order applied.
func (c *Cart) ApplyCartDiscount(d Discount) (Discount, error) {
	if err := d.validate(enums.DiscountScopeCart); err != nil {
		return Discount{}, err
	}
	for _, existing := range c.discounts {
		if d.Code != "" && existing.Code == d.Code {
			return Discount{}, pkgerrors.New(pkgerrors.CodeConflict, "coupon already applied").
				WithDetails(map[string]any{"code": d.Code})
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	c.discounts = append(c.discounts, d)
	c.changed()
	return d, nil
}

func (c *Cart) RemoveCartDiscount(discountID uuid.UUID) error {
	for i, d := range c.discounts {
		if d.ID == discountID {
			c.discounts = append(c.discounts[:i], c.discounts[i+1:]...)
			c.changed()
			return nil
		}
	}
	return ErrDiscountNotFound
}

// SetCustomer attaches a customer; nil detaches.
func (c *Cart) SetCustomer(customer *Customer) error {
	if customer != nil {
		if err := customer.Validate(); err != nil {
			return err
		}
		cp := *customer
		if cp.ID == uuid.Nil {
			cp.ID = uuid.New()
		}
		c.customer = &cp
	} else {
		c.customer = nil
	}
	c.changed()
	return nil
}

// Clear empties the cart and gives it a new identity for the next sale.
func (c *Cart) Clear() {
	c.id = uuid.New()
	c.createdAt = time.Now().UTC()
	c.lines = nil
	c.customer = nil
	c.discounts = nil
	c.changed()
}

// Subscribe registers a listener and returns a function that removes it.
func (c *Cart) Subscribe(fn Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listeners == nil {
		c.listeners = map[int]Listener{}
	}
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Cart) changed() {
	c.totals = compute(c.lines, c.discounts)

	c.mu.Lock()
	subs := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	snap := c.Snapshot()
	for _, fn := range subs {
		fn(snap)
	}
}

func (c *Cart) indexOf(lineID uuid.UUID) int {
	for i, l := range c.lines {
		if l.ID == lineID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
}
