// Package ledgersim is a reference implementation of the remote ledger
// contract. Registers sync against it in development and in tests.
package ledgersim

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-engine/pkg/db"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/ledger"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Logger *logger.Logger
	Now    func() time.Time
}

// Service applies ledger writes exactly once per operation identity.
type Service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{repo: params.Repo, tx: params.Tx, logg: params.Logger, now: params.Now}, nil
}

// RemoteID is the identifier the ledger hands back for a subject.
func RemoteID(kind EventKind, subjectID string) string {
	switch kind {
	case EventTransaction, EventVoid:
		return "ldg_txn_" + subjectID
	case EventInventoryAdjustment:
		return "ldg_adj_" + subjectID
	case EventCustomer:
		return "ldg_cus_" + subjectID
	default:
		return "ldg_" + subjectID
	}
}

func (s *Service) RecordTransaction(ctx context.Context, registerID string, req ledger.TransactionRequest) (ledger.Response, error) {
	var resp ledger.Response
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindTransaction(ctx, req.ID)
		switch {
		case err == nil:
			resp = ledger.Response{RemoteID: existing.RemoteID, AlreadySynced: true}
			return nil
		case !db.IsNotFound(err):
			return err
		}

		if registerID == "" {
			registerID = req.RegisterID
		}
		txn := &Transaction{
			ID:            req.ID,
			RegisterID:    registerID,
			ReceiptNumber: req.ReceiptNumber,
			Currency:      req.Currency,
			Total:         req.Totals.Total,
			RemoteID:      RemoteID(EventTransaction, req.ID),
			CreatedAt:     req.CreatedAt.UTC(),
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, repo, EventTransaction, "txn:"+req.ID, req.ID, registerID, txn.RemoteID, req); err != nil {
			return err
		}
		resp = ledger.Response{RemoteID: txn.RemoteID}
		return nil
	})
	if err != nil {
		return ledger.Response{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record transaction")
	}
	s.logResult(ctx, EventTransaction, req.ID, resp)
	return resp, nil
}

// VoidTransaction marks a known transaction voided. Voiding twice answers AlreadySynced.
func (s *Service) VoidTransaction(ctx context.Context, registerID, transactionID string, req ledger.VoidRequest) (ledger.Response, error) {
	var resp ledger.Response
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := repo.FindTransaction(ctx, transactionID)
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		if err != nil {
			return err
		}
		if txn.VoidedAt != nil {
			resp = ledger.Response{RemoteID: txn.RemoteID, AlreadySynced: true}
			return nil
		}

		voidedAt := req.VoidedAt.UTC()
		reason := req.Reason
		txn.VoidedAt = &voidedAt
		txn.VoidReason = &reason
		if err := repo.SaveTransaction(ctx, txn); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, repo, EventVoid, "void:"+transactionID, transactionID, registerID, txn.RemoteID, req); err != nil {
			return err
		}
		resp = ledger.Response{RemoteID: txn.RemoteID}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return ledger.Response{}, typed
		}
		return ledger.Response{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "void transaction")
	}
	s.logResult(ctx, EventVoid, transactionID, resp)
	return resp, nil
}

// AdjustInventory applies a stock delta once per adjustment id. Levels may go negative.
func (s *Service) AdjustInventory(ctx context.Context, registerID string, req ledger.InventoryAdjustmentRequest) (ledger.Response, error) {
	var resp ledger.Response
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		prior, err := repo.FindEvent(ctx, "adj:"+req.ID)
		switch {
		case err == nil:
			resp = ledger.Response{RemoteID: prior.RemoteID, AlreadySynced: true}
			return nil
		case !db.IsNotFound(err):
			return err
		}

		level, err := repo.FindStockLevel(ctx, req.ItemID, req.LocationID)
		if err != nil {
			return err
		}
		level.Quantity = level.Quantity.Add(req.Delta)
		level.UpdatedAt = s.now().UTC()
		if err := repo.SaveStockLevel(ctx, level); err != nil {
			return err
		}

		remoteID := RemoteID(EventInventoryAdjustment, req.ID)
		if err := s.appendEvent(ctx, repo, EventInventoryAdjustment, "adj:"+req.ID, req.ItemID, registerID, remoteID, req); err != nil {
			return err
		}
		resp = ledger.Response{RemoteID: remoteID}
		return nil
	})
	if err != nil {
		return ledger.Response{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adjust inventory")
	}
	s.logResult(ctx, EventInventoryAdjustment, req.ID, resp)
	return resp, nil
}

// UpsertCustomer is idempotent by nature; the last write wins.
func (s *Service) UpsertCustomer(ctx context.Context, registerID string, req ledger.CustomerRequest) (ledger.Response, error) {
	remoteID := RemoteID(EventCustomer, req.ID)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		customer := &Customer{
			ID:        req.ID,
			Name:      req.Name,
			Email:     req.Email,
			Phone:     req.Phone,
			RemoteID:  remoteID,
			UpdatedAt: s.now().UTC(),
		}
		if err := repo.UpsertCustomer(ctx, customer); err != nil {
			return err
		}
		key := fmt.Sprintf("customer:%s:%s", req.ID, uuid.NewString())
		return s.appendEvent(ctx, repo, EventCustomer, key, req.ID, registerID, remoteID, req)
	})
	if err != nil {
		return ledger.Response{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert customer")
	}
	resp := ledger.Response{RemoteID: remoteID}
	s.logResult(ctx, EventCustomer, req.ID, resp)
	return resp, nil
}

// StockLevel reports on-hand quantity for an item at a location.
func (s *Service) StockLevel(ctx context.Context, itemID, locationID string) (*StockLevel, error) {
	level, err := s.repo.FindStockLevel(ctx, itemID, locationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load stock level")
	}
	return level, nil
}

func (s *Service) Transaction(ctx context.Context, id string) (*Transaction, error) {
	txn, err := s.repo.FindTransaction(ctx, id)
	if db.IsNotFound(err) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transaction")
	}
	return txn, nil
}

// Events returns the write history for a subject in arrival order.
func (s *Service) Events(ctx context.Context, subjectID string) ([]Event, error) {
	events, err := s.repo.ListEvents(ctx, subjectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list events")
	}
	return events, nil
}

func (s *Service) appendEvent(ctx context.Context, repo Repository, kind EventKind, key, subjectID, registerID, remoteID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return repo.CreateEvent(ctx, &Event{
		Key:        key,
		Kind:       kind,
		SubjectID:  subjectID,
		RegisterID: registerID,
		RemoteID:   remoteID,
		Payload:    string(raw),
		CreatedAt:  s.now().UTC(),
	})
}

func (s *Service) logResult(ctx context.Context, kind EventKind, subjectID string, resp ledger.Response) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"kind":           string(kind),
		"subject_id":     subjectID,
		"remote_id":      resp.RemoteID,
		"already_synced": resp.AlreadySynced,
	})
	s.logg.Info(ctx, "ledger.write.applied")
}
