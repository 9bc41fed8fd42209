package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-engine/internal/cart"
	tenderpolicy "github.com/angelmondragon/pos-engine/pkg/checkout"
	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/devices"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
)

// Transition is emitted whenever a session changes state.
type Transition struct {
	CheckoutID uuid.UUID           `json:"checkoutId"`
	From       enums.CheckoutState `json:"from"`
	To         enums.CheckoutState `json:"to"`
	At         time.Time           `json:"at"`
}

// Result is what a finalized checkout hands back to the register.
type Result struct {
	Transaction *models.Transaction `json:"transaction"`
	Receipt     string              `json:"receipt"`
	ChangeDue   decimal.Decimal     `json:"changeDue"`
	// DeviceErrors lists printer and drawer failures after the sale was stored.
	// They never undo the sale.
	DeviceErrors []string `json:"deviceErrors,omitempty"`
}

// View is a read-only copy of a session for the UI.
type View struct {
	ID        uuid.UUID           `json:"id"`
	State     enums.CheckoutState `json:"state"`
	Cart      cart.State          `json:"cart"`
	Tenders   []Tender            `json:"tenders"`
	Removed   []Tender            `json:"removed,omitempty"`
	Total     decimal.Decimal     `json:"total"`
	Tendered  decimal.Decimal     `json:"tendered"`
	Remaining decimal.Decimal     `json:"remaining"`
	ChangeDue decimal.Decimal     `json:"changeDue"`
	StartedAt time.Time           `json:"startedAt"`
}

// Session is one checkout attempt: collecting -> settled -> finalized, or
// collecting -> aborted. Its id becomes the transaction id so a retried
// Finalize lands on the same record.
type Session struct {
	svc       *Service
	id        uuid.UUID
	who       Context
	cart      cart.State
	startedAt time.Time

	mu      sync.Mutex
	state   enums.CheckoutState
	tenders []Tender
	removed []Tender
	txn     *models.Transaction
	result  *Result
	pending []Transition

	subMu     sync.Mutex
	listeners map[int]func(Transition)
	nextSub   int
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) State() enums.CheckoutState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining is max(0, total - tendered).
func (s *Session) Remaining() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining()
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	tendered, cash := sumTenders(s.tenders)
	return View{
		ID:        s.id,
		State:     s.state,
		Cart:      deepCopy(s.cart),
		Tenders:   append([]Tender(nil), s.tenders...),
		Removed:   append([]Tender(nil), s.removed...),
		Total:     s.cart.Totals.Total,
		Tendered:  tendered,
		Remaining: tenderpolicy.Remaining(s.cart.Totals.Total, tendered),
		ChangeDue: tenderpolicy.ChangeDue(s.cart.Totals.Total, tendered, cash),
		StartedAt: s.startedAt,
	}
}

// Subscribe registers fn for state transitions and returns a function that removes it.
func (s *Session) Subscribe(fn func(Transition)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.listeners == nil {
		s.listeners = map[int]func(Transition){}
	}
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.listeners, id)
	}
}

// AddTender accepts a payment leg. Non-cash tenders are clamped to the
// remaining balance; cash may exceed it and produces change. Card tenders are
// charged on the terminal first and rejected if the charge fails.
func (s *Session) AddTender(ctx context.Context, in TenderInput) (Tender, error) {
	s.mu.Lock()
	defer s.flush()

	if err := s.require(enums.CheckoutCollecting); err != nil {
		return Tender{}, err
	}
	if err := in.validate(); err != nil {
		return Tender{}, err
	}
	remaining := s.remaining()
	if !remaining.IsPositive() {
		return Tender{}, pkgerrors.New(pkgerrors.CodeValidation, "balance is already covered")
	}

	amount := in.Amount
	if !in.Method.IsCash() && amount.GreaterThan(remaining) {
		amount = remaining
	}
	tender := Tender{
		ID:        uuid.New(),
		Method:    in.Method,
		Amount:    amount,
		Reference: in.Reference,
		Status:    TenderAccepted,
		CreatedAt: s.svc.now().UTC(),
	}

	if in.Method == enums.TenderCard {
		ref, err := s.charge(ctx, tender)
		if err != nil {
			return Tender{}, err
		}
		tender.Reference = ref
	}

	s.tenders = append(s.tenders, tender)
	s.svc.metrics.IncTender(tender.Method.String())
	s.svc.logg.Info(s.svc.logg.WithFields(ctx, map[string]any{
		"checkout_id": s.id,
		"tender_id":   tender.ID,
		"method":      tender.Method,
		"amount":      tender.Amount.StringFixed(2),
		"remaining":   s.remaining().StringFixed(2),
	}), "tender accepted")
	return tender, nil
}

// RemoveTender takes a tender back while collecting. Card tenders are
// reversed on the terminal first.
func (s *Session) RemoveTender(ctx context.Context, tenderID uuid.UUID) error {
	s.mu.Lock()
	defer s.flush()

	if err := s.require(enums.CheckoutCollecting); err != nil {
		return err
	}
	idx := -1
	for i, t := range s.tenders {
		if t.ID == tenderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tender not found")
	}
	tender := s.tenders[idx]
	if tender.Method == enums.TenderCard {
		if err := s.reverse(ctx, tender); err != nil {
			return err
		}
	}
	s.tenders = append(s.tenders[:idx], s.tenders[idx+1:]...)
	tender.Status = TenderReversed
	s.removed = append(s.removed, tender)

	s.svc.logg.Info(s.svc.logg.WithFields(ctx, map[string]any{
		"checkout_id": s.id,
		"tender_id":   tender.ID,
		"method":      tender.Method,
	}), "tender removed")
	return nil
}

// Finalize settles the sale once the balance is within epsilon and stores it.
// A storage failure leaves the session settled so Finalize can be retried;
// the transaction id does not change between attempts. After the sale is
// stored the receipt is printed and the drawer opened for cash.
func (s *Session) Finalize(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.flush()

	switch s.state {
	case enums.CheckoutFinalized:
		return s.result, nil
	case enums.CheckoutAborted:
		return nil, s.stateError(enums.CheckoutSettled)
	case enums.CheckoutCollecting:
		tendered, _ := sumTenders(s.tenders)
		if err := tenderpolicy.ValidateSettlement(s.cart.Totals.Total, tendered, s.svc.epsilon); err != nil {
			return nil, err
		}
		s.txn = s.buildTransaction()
		s.transition(enums.CheckoutSettled)
	}

	stored, err := s.svc.recorder.Record(ctx, s.txn)
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "store transaction")
		}
		s.svc.logg.Error(s.svc.logg.WithField(ctx, "checkout_id", s.id), "checkout could not be stored", err)
		return nil, err
	}

	s.result = &Result{Transaction: stored, ChangeDue: stored.ChangeDue}
	s.transition(enums.CheckoutFinalized)
	s.svc.metrics.IncOutcome(enums.CheckoutFinalized.String())
	s.svc.logg.Info(s.svc.logg.WithFields(ctx, map[string]any{
		"checkout_id":    s.id,
		"receipt_number": stored.ReceiptNumber,
		"total":          stored.Total.StringFixed(2),
		"change_due":     stored.ChangeDue.StringFixed(2),
	}), "checkout finalized")

	s.result.Receipt = s.svc.recorder.RenderReceipt(stored)
	s.afterCommit(ctx, stored)
	return s.result, nil
}

// Abort cancels a collecting session. Card tenders are reversed first; if one
// cannot be reversed the session stays collecting.
func (s *Session) Abort(ctx context.Context) error {
	s.mu.Lock()
	defer s.flush()

	if s.state == enums.CheckoutAborted {
		return nil
	}
	if err := s.require(enums.CheckoutCollecting); err != nil {
		return err
	}
	kept := s.tenders[:0]
	var firstErr error
	for _, t := range s.tenders {
		if t.Method == enums.TenderCard && firstErr == nil {
			if err := s.reverse(ctx, t); err != nil {
				firstErr = err
				kept = append(kept, t)
				continue
			}
			t.Status = TenderReversed
			s.removed = append(s.removed, t)
			continue
		}
		kept = append(kept, t)
	}
	s.tenders = kept
	if firstErr != nil {
		return firstErr
	}

	s.transition(enums.CheckoutAborted)
	s.svc.metrics.IncOutcome(enums.CheckoutAborted.String())
	s.svc.logg.Info(s.svc.logg.WithField(ctx, "checkout_id", s.id), "checkout aborted")
	return nil
}

func (s *Session) charge(ctx context.Context, t Tender) (string, error) {
	term := s.svc.devices.Terminal
	if term == nil {
		return "", devices.ErrUnavailable("card terminal")
	}
	res, err := term.Charge(ctx, t.Amount, t.ID.String())
	if err != nil {
		s.svc.metrics.IncDeviceError("card_terminal")
		err = devices.Wrap("card terminal", err)
		s.svc.logg.Warn(s.svc.logg.WithFields(ctx, map[string]any{
			"checkout_id": s.id,
			"amount":      t.Amount.StringFixed(2),
			"error":       err.Error(),
		}), "card charge declined")
		return "", err
	}
	return res.Reference, nil
}

func (s *Session) reverse(ctx context.Context, t Tender) error {
	rev, ok := s.svc.devices.Terminal.(devices.Reverser)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "card tenders cannot be reversed on this terminal").
			WithDetails(map[string]any{"tenderId": t.ID})
	}
	if err := rev.Reverse(ctx, t.Reference, t.Amount); err != nil {
		s.svc.metrics.IncDeviceError("card_terminal")
		return devices.Wrap("card terminal", err)
	}
	return nil
}

// afterCommit drives the receipt printer and cash drawer. Failures are
// reported on the result only.
func (s *Session) afterCommit(ctx context.Context, txn *models.Transaction) {
	if p := s.svc.devices.Printer; p != nil {
		if err := p.Print(ctx, s.result.Receipt); err != nil {
			s.deviceFailure(ctx, "printer", err)
		}
	}
	if s.svc.openDrawerOnCash && txn.CashAmount.Add(txn.ChangeDue).IsPositive() {
		if d := s.svc.devices.Drawer; d != nil {
			if err := d.OpenDrawer(ctx); err != nil {
				s.deviceFailure(ctx, "cash_drawer", err)
			}
		}
	}
}

func (s *Session) deviceFailure(ctx context.Context, device string, err error) {
	s.svc.metrics.IncDeviceError(device)
	s.result.DeviceErrors = append(s.result.DeviceErrors, device+": "+err.Error())
	s.svc.logg.Error(s.svc.logg.WithField(ctx, "checkout_id", s.id), device+" failed after sale", err)
}

func (s *Session) buildTransaction() *models.Transaction {
	totals := s.cart.Totals
	tendered, cash := sumTenders(s.tenders)
	change := tenderpolicy.ChangeDue(totals.Total, tendered, cash)

	txn := &models.Transaction{
		ID:            s.id,
		RegisterID:    s.who.RegisterID,
		OperatorID:    s.who.OperatorID,
		ShiftID:       s.who.ShiftID,
		Status:        enums.TransactionCompleted,
		Currency:      s.svc.currency,
		Subtotal:      totals.Subtotal,
		DiscountTotal: totals.DiscountTotal,
		TaxTotal:      totals.TaxTotal,
		Total:         totals.Total,
		Tendered:      tendered,
		ChangeDue:     change,
		CashAmount:    cash.Sub(change),
		CreatedAt:     s.svc.now().UTC(),
	}
	if s.cart.Customer != nil && s.cart.Customer.ID != uuid.Nil {
		id := s.cart.Customer.ID
		txn.CustomerID = &id
	}
	for _, l := range s.cart.Lines {
		txn.Lines = append(txn.Lines, models.TransactionLine{
			LineID:         l.ID,
			ItemID:         l.Item.ID,
			SKU:            l.Item.SKU,
			Name:           l.Item.Name,
			Quantity:       l.Quantity,
			UnitPrice:      l.Item.UnitPrice,
			TaxRate:        l.Item.TaxRate,
			Gross:          l.Gross,
			DiscountAmount: l.DiscountAmount.Add(l.CartDiscountShare),
			Tax:            l.Tax,
			Total:          l.Total,
		})
	}
	for _, t := range s.tenders {
		txn.Tenders = append(txn.Tenders, models.TransactionTender{
			ID:        t.ID,
			Method:    t.Method,
			Amount:    t.Amount,
			Reference: t.Reference,
			CreatedAt: t.CreatedAt,
		})
	}
	return txn
}

func (s *Session) remaining() decimal.Decimal {
	tendered, _ := sumTenders(s.tenders)
	return tenderpolicy.Remaining(s.cart.Totals.Total, tendered)
}

func (s *Session) require(state enums.CheckoutState) error {
	if s.state != state {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is not "+string(state)).
			WithDetails(map[string]any{"state": s.state})
	}
	return nil
}

func (s *Session) stateError(next enums.CheckoutState) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "illegal checkout transition").
		WithDetails(map[string]any{"from": s.state, "to": next})
}

// transition must be called with mu held; listeners run from flush.
func (s *Session) transition(next enums.CheckoutState) {
	if !s.state.CanTransitionTo(next) {
		return
	}
	s.pending = append(s.pending, Transition{CheckoutID: s.id, From: s.state, To: next, At: s.svc.now().UTC()})
	s.state = next
}

// flush releases mu and then delivers queued transitions, so listeners may
// call back into the session.
func (s *Session) flush() {
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	s.subMu.Lock()
	subs := make([]func(Transition), 0, len(s.listeners))
	for _, fn := range s.listeners {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, tr := range pending {
		for _, fn := range subs {
			fn(tr)
		}
	}
}
