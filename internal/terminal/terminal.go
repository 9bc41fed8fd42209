// Package terminal is the per-register session: it owns the active cart and
// the open checkout, and serializes every mutation on them.
package terminal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-engine/internal/cart"
	"github.com/angelmondragon/pos-engine/internal/checkout"
	"github.com/angelmondragon/pos-engine/internal/heldcarts"
	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/devices"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/logger"
	"github.com/angelmondragon/pos-engine/pkg/outbox"
)

var (
	ErrCheckoutInProgress = pkgerrors.New(pkgerrors.CodeStateConflict, "cart is locked while checkout is in progress")
	ErrNoCheckout         = pkgerrors.New(pkgerrors.CodeNotFound, "no checkout in progress")
)

// Catalog resolves scan codes and stores customers.
type Catalog interface {
	Lookup(ctx context.Context, code string) (cart.Item, error)
	SaveCustomer(ctx context.Context, in cart.Customer, actor *outbox.Actor) (*cart.Customer, error)
}

// HeldCarts suspends and resumes carts through the terminal's slot.
type HeldCarts interface {
	Hold(ctx context.Context, slot heldcarts.Slot, label string, heldBy *uuid.UUID) (*heldcarts.Summary, error)
	Recall(ctx context.Context, slot heldcarts.Slot, cartID uuid.UUID, heldBy *uuid.UUID) (*heldcarts.Summary, error)
	List(ctx context.Context) ([]heldcarts.Summary, error)
	Discard(ctx context.Context, cartID uuid.UUID) error
}

// Checkouts opens checkout sessions on frozen cart snapshots.
type Checkouts interface {
	Begin(ctx context.Context, snapshot cart.State, who checkout.Context) (*checkout.Session, error)
}

// Shifts tells the terminal which shift a sale belongs to.
type Shifts interface {
	OpenShiftFor(ctx context.Context, operatorID uuid.UUID) (*models.Shift, error)
}

type Params struct {
	RegisterID string
	Catalog    Catalog
	HeldCarts  HeldCarts
	Checkouts  Checkouts
	Shifts     Shifts
	Devices    devices.Set
	Logger     *logger.Logger
	Now        func() time.Time
}

// Terminal is one register. All methods are safe for concurrent use; the
// HTTP layer and device callbacks are serialized on mu. Cart and checkout
// events raised under mu are delivered after it is released, so listeners
// may read the terminal back.
type Terminal struct {
	mu         sync.Mutex
	registerID string
	active     *cart.Cart
	unhook     func()
	session    *checkout.Session

	catalog   Catalog
	held      HeldCarts
	checkouts Checkouts
	shifts    Shifts
	devices   devices.Set
	logg      *logger.Logger
	now       func() time.Time

	eventMu sync.Mutex
	locked  bool
	pending []func()

	subMu         sync.Mutex
	cartSubs      map[int]cart.Listener
	checkoutSubs  map[int]func(checkout.Transition)
	nextSub       int
	unhookSession func()
}

func New(params Params) (*Terminal, error) {
	if strings.TrimSpace(params.RegisterID) == "" {
		return nil, errors.New("register id is required")
	}
	if params.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if params.HeldCarts == nil {
		return nil, errors.New("held cart manager is required")
	}
	if params.Checkouts == nil {
		return nil, errors.New("checkout service is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	t := &Terminal{
		registerID:   params.RegisterID,
		catalog:      params.Catalog,
		held:         params.HeldCarts,
		checkouts:    params.Checkouts,
		shifts:       params.Shifts,
		devices:      params.Devices,
		logg:         params.Logger,
		now:          params.Now,
		cartSubs:     map[int]cart.Listener{},
		checkoutSubs: map[int]func(checkout.Transition){},
	}
	t.attach(cart.New())
	return t, nil
}

func (t *Terminal) RegisterID() string {
	return t.registerID
}

// Cart returns a snapshot of the active cart.
func (t *Terminal) Cart() cart.State {
	t.lock()
	defer t.unlock()
	return t.active.Snapshot()
}

// SubscribeCart receives a snapshot after every change to whichever cart is
// active, including swaps caused by hold and recall.
func (t *Terminal) SubscribeCart(fn cart.Listener) func() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.cartSubs[id] = fn
	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		delete(t.cartSubs, id)
	}
}

// SubscribeCheckout receives the state transitions of every checkout on this register.
func (t *Terminal) SubscribeCheckout(fn func(checkout.Transition)) func() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.checkoutSubs[id] = fn
	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		delete(t.checkoutSubs, id)
	}
}

// Scan resolves code through the catalog and adds one unit, or the scale
// reading for weighed items.
func (t *Terminal) Scan(ctx context.Context, code string) (cart.Line, error) {
	item, err := t.catalog.Lookup(ctx, code)
	if err != nil {
		return cart.Line{}, err
	}
	qty := decimal.NewFromInt(1)
	if item.WeightRequired {
		if t.devices.Scale == nil {
			return cart.Line{}, devices.ErrUnavailable("scale")
		}
		qty, err = t.devices.Scale.ReadWeight(ctx)
		if err != nil {
			return cart.Line{}, devices.Wrap("scale", err)
		}
	}

	t.lock()
	defer t.unlock()
	if err := t.editable(); err != nil {
		return cart.Line{}, err
	}
	line, err := t.active.AddItemQty(item, qty)
	if err != nil {
		return cart.Line{}, err
	}
	t.logg.Debug(t.logg.WithFields(ctx, map[string]any{
		"item_id":  item.ID,
		"quantity": qty.String(),
	}), "item scanned")
	return line, nil
}

// ScanNext reads one code from the attached scanner and adds it.
func (t *Terminal) ScanNext(ctx context.Context) (cart.Line, error) {
	if t.devices.Scanner == nil {
		return cart.Line{}, devices.ErrUnavailable("barcode scanner")
	}
	code, err := t.devices.Scanner.ReadBarcode(ctx)
	if err != nil {
		return cart.Line{}, devices.Wrap("barcode scanner", err)
	}
	return t.Scan(ctx, code)
}

func (t *Terminal) AddItem(item cart.Item, qty decimal.Decimal) (cart.Line, error) {
	var line cart.Line
	err := t.edit(func(c *cart.Cart) error {
		var err error
		line, err = c.AddItemQty(item, qty)
		return err
	})
	return line, err
}

func (t *Terminal) SetQuantity(lineID uuid.UUID, qty decimal.Decimal) error {
	return t.edit(func(c *cart.Cart) error { return c.SetQuantity(lineID, qty) })
}

func (t *Terminal) RemoveLine(lineID uuid.UUID) error {
	return t.edit(func(c *cart.Cart) error { return c.RemoveLine(lineID) })
}

func (t *Terminal) SetLineDiscount(lineID uuid.UUID, kind enums.DiscountKind, value decimal.Decimal) error {
	return t.edit(func(c *cart.Cart) error { return c.SetLineDiscount(lineID, kind, value) })
}

func (t *Terminal) ClearLineDiscount(lineID uuid.UUID) error {
	return t.edit(func(c *cart.Cart) error { return c.ClearLineDiscount(lineID) })
}

func (t *Terminal) ApplyCartDiscount(d cart.Discount) (cart.Discount, error) {
	var applied cart.Discount
	err := t.edit(func(c *cart.Cart) error {
		var err error
		applied, err = c.ApplyCartDiscount(d)
		return err
	})
	return applied, err
}

func (t *Terminal) RemoveCartDiscount(discountID uuid.UUID) error {
	return t.edit(func(c *cart.Cart) error { return c.RemoveCartDiscount(discountID) })
}

// SetCustomer attaches a customer to the sale; nil detaches.
func (t *Terminal) SetCustomer(customer *cart.Customer) error {
	return t.edit(func(c *cart.Cart) error { return c.SetCustomer(customer) })
}

// UpsertCustomer saves the customer locally, queues the ledger upsert and
// attaches the result to the active cart.
func (t *Terminal) UpsertCustomer(ctx context.Context, in cart.Customer, operatorID uuid.UUID) (*cart.Customer, error) {
	t.lock()
	defer t.unlock()
	if err := t.editable(); err != nil {
		return nil, err
	}
	saved, err := t.catalog.SaveCustomer(ctx, in, t.actor(operatorID))
	if err != nil {
		return nil, err
	}
	if err := t.active.SetCustomer(saved); err != nil {
		return nil, err
	}
	return saved, nil
}

func (t *Terminal) ClearCart() error {
	return t.edit(func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

// Hold suspends the active cart and starts an empty one.
func (t *Terminal) Hold(ctx context.Context, label string, operatorID uuid.UUID) (*heldcarts.Summary, error) {
	t.lock()
	defer t.unlock()
	if err := t.editable(); err != nil {
		return nil, err
	}
	return t.held.Hold(ctx, slot{t}, label, optionalID(operatorID))
}

// Recall resumes a held cart. A non-empty active cart is held automatically
// and its summary returned.
func (t *Terminal) Recall(ctx context.Context, cartID uuid.UUID, operatorID uuid.UUID) (*heldcarts.Summary, error) {
	t.lock()
	defer t.unlock()
	if err := t.editable(); err != nil {
		return nil, err
	}
	return t.held.Recall(ctx, slot{t}, cartID, optionalID(operatorID))
}

func (t *Terminal) HeldCarts(ctx context.Context) ([]heldcarts.Summary, error) {
	return t.held.List(ctx)
}

func (t *Terminal) DiscardHeld(ctx context.Context, cartID uuid.UUID) error {
	return t.held.Discard(ctx, cartID)
}

// BeginCheckout freezes the active cart into a checkout session. A session
// that is still open is returned as is.
func (t *Terminal) BeginCheckout(ctx context.Context, operatorID uuid.UUID) (*checkout.Session, error) {
	t.lock()
	defer t.unlock()
	if t.open() {
		return t.session, nil
	}

	who := checkout.Context{RegisterID: t.registerID, OperatorID: operatorID}
	if t.shifts != nil && operatorID != uuid.Nil {
		shift, err := t.shifts.OpenShiftFor(ctx, operatorID)
		if err != nil {
			return nil, err
		}
		if shift != nil {
			id := shift.ID
			who.ShiftID = &id
		}
	}
	sess, err := t.checkouts.Begin(ctx, t.active.Snapshot(), who)
	if err != nil {
		return nil, err
	}
	t.setSession(sess)
	t.publishTransition(checkout.Transition{
		CheckoutID: sess.ID(),
		To:         enums.CheckoutCollecting,
		At:         t.now().UTC(),
	})
	return sess, nil
}

// Checkout returns the open checkout session.
func (t *Terminal) Checkout() (*checkout.Session, error) {
	t.lock()
	defer t.unlock()
	if t.session == nil {
		return nil, ErrNoCheckout
	}
	return t.session, nil
}

func (t *Terminal) AddTender(ctx context.Context, in checkout.TenderInput) (checkout.Tender, error) {
	t.lock()
	defer t.unlock()
	if t.session == nil {
		return checkout.Tender{}, ErrNoCheckout
	}
	return t.session.AddTender(ctx, in)
}

func (t *Terminal) RemoveTender(ctx context.Context, tenderID uuid.UUID) error {
	t.lock()
	defer t.unlock()
	if t.session == nil {
		return ErrNoCheckout
	}
	return t.session.RemoveTender(ctx, tenderID)
}

// Finalize completes the open checkout. The cart is cleared only once the
// sale is durably stored; on a storage failure the cart and the settled
// session are kept so Finalize can be retried.
func (t *Terminal) Finalize(ctx context.Context) (*checkout.Result, error) {
	t.lock()
	defer t.unlock()
	if t.session == nil {
		return nil, ErrNoCheckout
	}
	res, err := t.session.Finalize(ctx)
	if err != nil {
		return nil, err
	}
	t.active.Clear()
	t.setSession(nil)
	return res, nil
}

// AbortCheckout cancels the open checkout and unlocks the cart.
func (t *Terminal) AbortCheckout(ctx context.Context) error {
	t.lock()
	defer t.unlock()
	if t.session == nil {
		return ErrNoCheckout
	}
	if err := t.session.Abort(ctx); err != nil {
		return err
	}
	t.setSession(nil)
	return nil
}

func (t *Terminal) edit(fn func(c *cart.Cart) error) error {
	t.lock()
	defer t.unlock()
	if err := t.editable(); err != nil {
		return err
	}
	return fn(t.active)
}

func (t *Terminal) editable() error {
	if t.open() {
		return ErrCheckoutInProgress
	}
	return nil
}

func (t *Terminal) open() bool {
	return t.session != nil && !t.session.State().IsTerminal()
}

func (t *Terminal) actor(operatorID uuid.UUID) *outbox.Actor {
	a := &outbox.Actor{RegisterID: t.registerID}
	if operatorID != uuid.Nil {
		a.OperatorID = operatorID.String()
	}
	return a
}

// attach makes c the active cart and forwards its changes to cart subscribers.
func (t *Terminal) attach(c *cart.Cart) {
	if t.unhook != nil {
		t.unhook()
	}
	t.active = c
	t.unhook = c.Subscribe(t.publishCart)
}

func (t *Terminal) setSession(sess *checkout.Session) {
	if t.unhookSession != nil {
		t.unhookSession()
		t.unhookSession = nil
	}
	t.session = sess
	if sess != nil {
		t.unhookSession = sess.Subscribe(t.publishTransition)
	}
}

func (t *Terminal) lock() {
	t.mu.Lock()
	t.eventMu.Lock()
	t.locked = true
	t.eventMu.Unlock()
}

// unlock releases mu and then delivers the events queued while it was held.
func (t *Terminal) unlock() {
	t.eventMu.Lock()
	t.locked = false
	pending := t.pending
	t.pending = nil
	t.eventMu.Unlock()
	t.mu.Unlock()
	for _, deliver := range pending {
		deliver()
	}
}

// emit runs deliver now, or queues it when a locked section is in progress.
func (t *Terminal) emit(deliver func()) {
	t.eventMu.Lock()
	if t.locked {
		t.pending = append(t.pending, deliver)
		t.eventMu.Unlock()
		return
	}
	t.eventMu.Unlock()
	deliver()
}

func (t *Terminal) publishCart(s cart.State) {
	t.emit(func() {
		t.subMu.Lock()
		subs := make([]cart.Listener, 0, len(t.cartSubs))
		for _, fn := range t.cartSubs {
			subs = append(subs, fn)
		}
		t.subMu.Unlock()
		for _, fn := range subs {
			fn(s)
		}
	})
}

func (t *Terminal) publishTransition(tr checkout.Transition) {
	t.emit(func() {
		t.subMu.Lock()
		subs := make([]func(checkout.Transition), 0, len(t.checkoutSubs))
		for _, fn := range t.checkoutSubs {
			subs = append(subs, fn)
		}
		t.subMu.Unlock()
		for _, fn := range subs {
			fn(tr)
		}
	})
}

// slot exposes the active cart to the held cart manager. It is only used
// while mu is held.
type slot struct {
	t *Terminal
}

func (s slot) Active() *cart.Cart {
	return s.t.active
}

func (s slot) Replace(c *cart.Cart) {
	s.t.attach(c)
	s.t.publishCart(c.Snapshot())
}

func optionalID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
