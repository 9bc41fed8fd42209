// Package catalog resolves scanned codes to sellable items and keeps the
// register's customer book in step with the ledger.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-engine/internal/cart"
	"github.com/angelmondragon/pos-engine/pkg/db"
	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/ledger"
	"github.com/angelmondragon/pos-engine/pkg/logger"
	"github.com/angelmondragon/pos-engine/pkg/outbox"
)

var ErrCustomerNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")

var validate = validator.New(validator.WithRequiredStructEnabled())

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Outbox queues the customer upserts the ledger has to see.
type Outbox interface {
	EnqueueTx(ctx context.Context, tx *gorm.DB, op outbox.Operation) error
	Kick()
}

// ItemInput is a catalog entry as provisioned from the back office.
type ItemInput struct {
	ID             *uuid.UUID      `json:"id,omitempty"`
	SKU            string          `json:"sku" validate:"required,max=64"`
	Barcode        string          `json:"barcode,omitempty" validate:"omitempty,max=64"`
	Name           string          `json:"name" validate:"required,max=200"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	TaxRate        decimal.Decimal `json:"taxRate"`
	WeightRequired bool            `json:"weightRequired"`
	Inactive       bool            `json:"inactive,omitempty"`
}

type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Outbox Outbox
	Logger *logger.Logger
	Now    func() time.Time
}

type Service struct {
	repo   Repository
	tx     txRunner
	outbox Outbox
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("catalog repository is required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    params.Now,
	}, nil
}

// Lookup resolves a barcode or SKU to the item the cart sells.
func (s *Service) Lookup(ctx context.Context, code string) (cart.Item, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return cart.Item{}, pkgerrors.New(pkgerrors.CodeValidation, "scan code is required")
	}
	row, err := s.repo.FindItemByCode(ctx, code)
	if err != nil {
		return cart.Item{}, storageError(err, "look up item")
	}
	if row == nil {
		return cart.Item{}, pkgerrors.New(pkgerrors.CodeNotFound, "item not found").
			WithDetails(map[string]any{"code": code})
	}
	return toCartItem(row), nil
}

// SaveItem creates or replaces a catalog entry.
func (s *Service) SaveItem(ctx context.Context, in ItemInput) (*models.CatalogItem, error) {
	if err := validate.Struct(in); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid catalog item")
	}
	if in.UnitPrice.IsNegative() || in.TaxRate.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price and tax rate must not be negative")
	}
	row := &models.CatalogItem{
		ID:             uuid.New(),
		SKU:            strings.TrimSpace(in.SKU),
		Name:           strings.TrimSpace(in.Name),
		UnitPrice:      in.UnitPrice,
		TaxRate:        in.TaxRate,
		WeightRequired: in.WeightRequired,
		Active:         !in.Inactive,
		UpdatedAt:      s.now().UTC(),
	}
	if in.ID != nil && *in.ID != uuid.Nil {
		row.ID = *in.ID
	}
	if b := strings.TrimSpace(in.Barcode); b != "" {
		row.Barcode = &b
	}
	if err := s.repo.UpsertItem(ctx, row); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "sku or barcode already used by another item")
		}
		return nil, storageError(err, "save item")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"item_id": row.ID,
		"sku":     row.SKU,
	}), "catalog item saved")
	return row, nil
}

func (s *Service) Items(ctx context.Context, query string, limit int) ([]models.CatalogItem, error) {
	rows, err := s.repo.ListItems(ctx, query, limit)
	if err != nil {
		return nil, storageError(err, "list items")
	}
	return rows, nil
}

// SaveCustomer stores the customer locally and queues the ledger upsert on
// the same database transaction. A new id is assigned when none is given.
func (s *Service) SaveCustomer(ctx context.Context, in cart.Customer, actor *outbox.Actor) (*cart.Customer, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	now := s.now().UTC()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindCustomer(ctx, in.ID)
		if err != nil {
			return err
		}
		row := &models.Customer{
			ID:        in.ID,
			Name:      strings.TrimSpace(in.Name),
			Email:     optional(in.Email),
			Phone:     optional(in.Phone),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if existing != nil {
			row.CreatedAt = existing.CreatedAt
			row.RemoteID = existing.RemoteID
		}
		if err := repo.UpsertCustomer(ctx, row); err != nil {
			return err
		}
		if row.RemoteID != nil {
			in.RemoteID = *row.RemoteID
		}
		// The key carries the update time so each edit is its own operation.
		return s.outbox.EnqueueTx(ctx, tx, outbox.Operation{
			Type:   enums.SyncCustomer,
			Action: enums.SyncActionUpsert,
			Key:    fmt.Sprintf("%s@%d", in.ID, now.UnixNano()),
			Actor:  actor,
			Data: ledger.CustomerRequest{
				ID:    in.ID.String(),
				Name:  row.Name,
				Email: in.Email,
				Phone: in.Phone,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, storageError(err, "save customer")
	}
	s.outbox.Kick()

	s.logg.Info(s.logg.WithField(ctx, "customer_id", in.ID), "customer saved")
	return &in, nil
}

func (s *Service) Customer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	row, err := s.repo.FindCustomer(ctx, id)
	if err != nil {
		return nil, storageError(err, "load customer")
	}
	if row == nil {
		return nil, ErrCustomerNotFound
	}
	return row, nil
}

// HandleDelivered stores the ledger's customer id once the upsert is acknowledged.
func (s *Service) HandleDelivered(ctx context.Context, d outbox.Delivery, ack outbox.Ack) error {
	if d.Type != enums.SyncCustomer || ack.RemoteID == "" {
		return nil
	}
	var req ledger.CustomerRequest
	if err := d.Decode(&req); err != nil {
		return err
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return fmt.Errorf("customer id %q: %w", req.ID, err)
	}
	return s.repo.SetCustomerRemoteID(ctx, id, ack.RemoteID, s.now())
}

func toCartItem(row *models.CatalogItem) cart.Item {
	return cart.Item{
		ID:             row.ID.String(),
		SKU:            row.SKU,
		Name:           row.Name,
		UnitPrice:      row.UnitPrice,
		TaxRate:        row.TaxRate,
		WeightRequired: row.WeightRequired,
	}
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func storageError(err error, op string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, op+" failed")
}
