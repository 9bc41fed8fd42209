package transactions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-engine/pkg/db"
	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/ledger"
	"github.com/angelmondragon/pos-engine/pkg/logger"
	"github.com/angelmondragon/pos-engine/pkg/outbox"
	"github.com/angelmondragon/pos-engine/pkg/pagination"
)

const (
	adjustmentReasonSale = "sale"
	adjustmentReasonVoid = "void"
)

var (
	ErrNotFound      = pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	ErrAlreadyVoided = pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already voided")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Outbox is the part of the sync engine the transaction log writes through.
type Outbox interface {
	EnqueueTx(ctx context.Context, tx *gorm.DB, op outbox.Operation) error
	Kick()
}

type ServiceParams struct {
	Repo          Repository
	Tx            txRunner
	Outbox        Outbox
	RegisterID    string
	LocationID    string
	ReceiptPrefix string
	StoreName     string
	ReceiptWidth  int
	Logger        *logger.Logger
	Now           func() time.Time
}

// Service is the register's durable transaction log. Every write also queues
// the matching ledger operations on the same database transaction.
type Service struct {
	repo          Repository
	tx            txRunner
	outbox        Outbox
	registerID    string
	locationID    string
	receiptPrefix string
	storeName     string
	receiptWidth  int
	logg          *logger.Logger
	now           func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("transaction repository is required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox is required")
	}
	if strings.TrimSpace(params.RegisterID) == "" {
		return nil, errors.New("register id is required")
	}
	if params.LocationID == "" {
		params.LocationID = "main"
	}
	if params.ReceiptPrefix == "" {
		params.ReceiptPrefix = "R"
	}
	if params.ReceiptWidth <= 0 {
		params.ReceiptWidth = 42
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		repo:          params.Repo,
		tx:            params.Tx,
		outbox:        params.Outbox,
		registerID:    params.RegisterID,
		locationID:    params.LocationID,
		receiptPrefix: params.ReceiptPrefix,
		storeName:     params.StoreName,
		receiptWidth:  params.ReceiptWidth,
		logg:          params.Logger,
		now:           params.Now,
	}, nil
}

// FormatReceiptNumber renders PREFIX-000042.
func FormatReceiptNumber(prefix string, value int64) string {
	return fmt.Sprintf("%s-%06d", prefix, value)
}

// Record stores a completed sale and queues its ledger operations atomically.
// Recording an id that already exists returns the stored row unchanged, so a
// caller may retry after an ambiguous failure.
func (s *Service) Record(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if txn == nil || txn.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if len(txn.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction has no lines")
	}

	row := *txn
	if row.RegisterID == "" {
		row.RegisterID = s.registerID
	}
	if row.Status == "" {
		row.Status = enums.TransactionCompleted
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	row.CreatedAt = row.CreatedAt.UTC()

	var (
		stored  *models.Transaction
		created bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByID(ctx, row.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			stored = existing
			return nil
		}
		if row.ReceiptNumber == "" {
			n, err := repo.NextReceiptValue(ctx, row.RegisterID, row.CreatedAt)
			if err != nil {
				return err
			}
			row.ReceiptNumber = FormatReceiptNumber(s.receiptPrefix, n)
		}
		if _, err := repo.Insert(ctx, &row); err != nil {
			return err
		}
		if err := s.enqueueSale(ctx, tx, &row); err != nil {
			return err
		}
		stored, created = &row, true
		return nil
	})
	if err != nil {
		return nil, s.storageError(err, "record transaction")
	}
	s.outbox.Kick()

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"transaction_id": stored.ID,
		"receipt_number": stored.ReceiptNumber,
		"total":          stored.Total.StringFixed(2),
	})
	if created {
		s.logg.Info(logCtx, "transaction recorded")
	} else {
		s.logg.Debug(logCtx, "transaction already recorded")
	}
	return stored, nil
}

// Void reverses a completed sale and queues the ledger void together with
// inventory adjustments that put the stock back.
func (s *Service) Void(ctx context.Context, id, operatorID uuid.UUID, reason string) (*models.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "void reason is required")
	}
	at := s.now().UTC()

	var voided *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if txn == nil {
			return ErrNotFound
		}
		if txn.IsVoided() {
			return ErrAlreadyVoided
		}
		ok, err := repo.MarkVoided(ctx, id, operatorID, reason, at)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyVoided
		}
		txn.Status = enums.TransactionVoided
		txn.VoidReason = &reason
		txn.VoidedBy = &operatorID
		txn.VoidedAt = &at
		if err := s.enqueueVoid(ctx, tx, txn, operatorID); err != nil {
			return err
		}
		voided = txn
		return nil
	})
	if err != nil {
		return nil, s.storageError(err, "void transaction")
	}
	s.outbox.Kick()

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transaction_id": id,
		"receipt_number": voided.ReceiptNumber,
		"reason":         reason,
	}), "transaction voided")
	return voided, nil
}

// HandleDelivered records the ledger's id once a sale has been accepted.
func (s *Service) HandleDelivered(ctx context.Context, d outbox.Delivery, ack outbox.Ack) error {
	if d.Type != enums.SyncTransaction || d.Action != enums.SyncActionCreate {
		return nil
	}
	id, err := uuid.Parse(d.Key)
	if err != nil {
		return fmt.Errorf("transaction key %q: %w", d.Key, err)
	}
	return s.repo.MarkSynced(ctx, id, ack.RemoteID, s.now())
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	txn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.storageError(err, "load transaction")
	}
	if txn == nil {
		return nil, ErrNotFound
	}
	return txn, nil
}

// List returns recent transactions for this register, newest first.
// List returns one newest-first page of the register's history.
func (s *Service) List(ctx context.Context, filter ListFilter) (pagination.Page[models.Transaction], error) {
	if filter.RegisterID == "" {
		filter.RegisterID = s.registerID
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return pagination.Page[models.Transaction]{}, s.storageError(err, "list transactions")
	}
	return pagination.Trim(rows, filter.Limit, func(t models.Transaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	}), nil
}

// CashCollected sums the drawer cash of an operator's non-voided sales since a
// point in time. Shift reconciliation reads it; nothing else writes through it.
func (s *Service) CashCollected(ctx context.Context, registerID string, operatorID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	amounts, err := s.repo.CashAmounts(ctx, registerID, operatorID, since)
	if err != nil {
		return decimal.Zero, s.storageError(err, "sum cash sales")
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total, nil
}

// Receipt renders the printable receipt of a stored transaction.
func (s *Service) Receipt(ctx context.Context, id uuid.UUID) (string, error) {
	txn, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.RenderReceipt(txn), nil
}

// RenderReceipt formats txn with this register's header.
func (s *Service) RenderReceipt(txn *models.Transaction) string {
	return RenderReceipt(txn, ReceiptHeader{StoreName: s.storeName, RegisterID: s.registerID}, s.receiptWidth)
}

func (s *Service) enqueueSale(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error {
	actor := &outbox.Actor{RegisterID: txn.RegisterID, OperatorID: txn.OperatorID.String()}
	if err := s.outbox.EnqueueTx(ctx, tx, outbox.Operation{
		Type:       enums.SyncTransaction,
		Action:     enums.SyncActionCreate,
		Key:        txn.ID.String(),
		Actor:      actor,
		Data:       toLedgerRequest(txn),
		OccurredAt: txn.CreatedAt,
	}); err != nil {
		return err
	}
	for _, line := range txn.Lines {
		if err := s.enqueueAdjustment(ctx, tx, txn, actor, line, line.Quantity.Neg(), adjustmentReasonSale, line.LineID[:]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) enqueueVoid(ctx context.Context, tx *gorm.DB, txn *models.Transaction, operatorID uuid.UUID) error {
	actor := &outbox.Actor{RegisterID: txn.RegisterID, OperatorID: operatorID.String()}
	if err := s.outbox.EnqueueTx(ctx, tx, outbox.Operation{
		Type:   enums.SyncTransaction,
		Action: enums.SyncActionVoid,
		Key:    txn.ID.String(),
		Actor:  actor,
		Data: ledger.VoidPayload{
			TransactionID: txn.ID.String(),
			VoidRequest: ledger.VoidRequest{
				VoidedAt:   *txn.VoidedAt,
				Reason:     *txn.VoidReason,
				OperatorID: operatorID.String(),
			},
		},
		OccurredAt: *txn.VoidedAt,
	}); err != nil {
		return err
	}
	for _, line := range txn.Lines {
		name := append([]byte(adjustmentReasonVoid+":"), line.LineID[:]...)
		if err := s.enqueueAdjustment(ctx, tx, txn, actor, line, line.Quantity, adjustmentReasonVoid, name); err != nil {
			return err
		}
	}
	return nil
}

// enqueueAdjustment keys each stock movement by the transaction and a
// per-line name so replays collapse onto the same ledger record.
func (s *Service) enqueueAdjustment(ctx context.Context, tx *gorm.DB, txn *models.Transaction, actor *outbox.Actor, line models.TransactionLine, delta decimal.Decimal, reason string, name []byte) error {
	id := uuid.NewSHA1(txn.ID, name).String()
	return s.outbox.EnqueueTx(ctx, tx, outbox.Operation{
		Type:   enums.SyncInventoryAdjustment,
		Action: enums.SyncActionAdjust,
		Key:    id,
		Actor:  actor,
		Data: ledger.InventoryAdjustmentRequest{
			ID:            id,
			ItemID:        line.ItemID,
			LocationID:    s.locationID,
			Delta:         delta,
			Reason:        reason,
			TransactionID: txn.ID.String(),
		},
		OccurredAt: txn.CreatedAt,
	})
}

func (s *Service) storageError(err error, op string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if db.IsUniqueViolation(err, "ux_transactions_receipt_number") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "receipt number already issued")
	}
	return pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, fmt.Sprintf("%s failed", op))
}

func toLedgerRequest(txn *models.Transaction) ledger.TransactionRequest {
	req := ledger.TransactionRequest{
		ID:            txn.ID.String(),
		RegisterID:    txn.RegisterID,
		ReceiptNumber: txn.ReceiptNumber,
		OperatorID:    txn.OperatorID.String(),
		Currency:      txn.Currency.String(),
		Totals: ledger.Totals{
			Subtotal:      txn.Subtotal,
			DiscountTotal: txn.DiscountTotal,
			TaxTotal:      txn.TaxTotal,
			Total:         txn.Total,
			Tendered:      txn.Tendered,
			ChangeDue:     txn.ChangeDue,
		},
		CreatedAt: txn.CreatedAt,
	}
	if txn.CustomerID != nil {
		req.CustomerID = txn.CustomerID.String()
	}
	for _, l := range txn.Lines {
		req.Lines = append(req.Lines, ledger.TransactionLine{
			LineID:         l.LineID.String(),
			ItemID:         l.ItemID,
			SKU:            l.SKU,
			Name:           l.Name,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			DiscountAmount: l.DiscountAmount,
			Tax:            l.Tax,
			Total:          l.Total,
		})
	}
	for _, t := range txn.Tenders {
		req.Tenders = append(req.Tenders, ledger.TransactionTender{
			Method:    t.Method.String(),
			Amount:    t.Amount,
			Reference: t.Reference,
		})
	}
	return req
}
