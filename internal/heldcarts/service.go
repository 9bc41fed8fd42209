package heldcarts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-engine/internal/cart"
	"github.com/angelmondragon/pos-engine/pkg/db"
	"github.com/angelmondragon/pos-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

const autoSaveLabel = "auto-saved"

var (
	ErrEmptyCart = pkgerrors.New(pkgerrors.CodeValidation, "cannot hold an empty cart")
	ErrNotFound  = pkgerrors.New(pkgerrors.CodeNotFound, "held cart not found")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Slot is the register's active-cart position. Hold and Recall swap carts in and out of it.
type Slot interface {
	Active() *cart.Cart
	Replace(c *cart.Cart)
}

// Summary is the list view of a held cart.
type Summary struct {
	ID        uuid.UUID       `json:"id"`
	Label     string          `json:"label"`
	LineCount int             `json:"lineCount"`
	Total     decimal.Decimal `json:"total"`
	HeldBy    *uuid.UUID      `json:"heldBy,omitempty"`
	HeldAt    time.Time       `json:"heldAt"`
}

// ManagerParams wires a Manager.
type ManagerParams struct {
	Repo       Repository
	Tx         txRunner
	RegisterID string
	Logger     *logger.Logger
	Now        func() time.Time
}

// Manager suspends and resumes carts so one operator can serve several customers.
type Manager struct {
	repo       Repository
	tx         txRunner
	registerID string
	logg       *logger.Logger
	now        func() time.Time
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.Repo == nil {
		return nil, errors.New("held cart repository is required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if strings.TrimSpace(params.RegisterID) == "" {
		return nil, errors.New("register id is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Manager{
		repo:       params.Repo,
		tx:         params.Tx,
		registerID: params.RegisterID,
		logg:       params.Logger,
		now:        params.Now,
	}, nil
}

// Hold persists the active cart and replaces it with a fresh empty one.
func (m *Manager) Hold(ctx context.Context, slot Slot, label string, heldBy *uuid.UUID) (*Summary, error) {
	active := slot.Active()
	if active == nil || active.IsEmpty() {
		return nil, ErrEmptyCart
	}

	row, err := m.toRow(active.Snapshot(), label, heldBy)
	if err != nil {
		return nil, err
	}
	if err := m.repo.Create(ctx, row); err != nil {
		return nil, m.storageError(err, "hold cart")
	}
	slot.Replace(cart.New())

	m.logg.Info(m.logg.WithFields(ctx, map[string]any{"cart_id": row.ID, "label": row.Label}), "cart held")
	return summarize(row), nil
}

// Recall makes a held cart active. A non-empty active cart is held first; both
// writes commit together so no cart is lost if either fails.
func (m *Manager) Recall(ctx context.Context, slot Slot, cartID uuid.UUID, heldBy *uuid.UUID) (*Summary, error) {
	row, err := m.repo.FindByID(ctx, m.registerID, cartID)
	if err != nil {
		return nil, m.storageError(err, "load held cart")
	}
	if row == nil {
		return nil, ErrNotFound
	}
	recalled, err := decode(row)
	if err != nil {
		return nil, err
	}

	var autoHeld *models.HeldCart
	active := slot.Active()
	if active != nil && !active.IsEmpty() {
		autoHeld, err = m.toRow(active.Snapshot(), autoSaveLabel, heldBy)
		if err != nil {
			return nil, err
		}
	}

	err = m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		if autoHeld != nil {
			if err := repo.Create(ctx, autoHeld); err != nil {
				return err
			}
		}
		deleted, err := repo.Delete(ctx, m.registerID, cartID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, m.storageError(err, "recall cart")
	}
	slot.Replace(recalled)

	fields := map[string]any{"cart_id": cartID}
	if autoHeld != nil {
		fields["auto_held_cart_id"] = autoHeld.ID
	}
	m.logg.Info(m.logg.WithFields(ctx, fields), "cart recalled")

	if autoHeld == nil {
		return nil, nil
	}
	return summarize(autoHeld), nil
}

// Discard drops a held cart without restoring it.
func (m *Manager) Discard(ctx context.Context, cartID uuid.UUID) error {
	deleted, err := m.repo.Delete(ctx, m.registerID, cartID)
	if err != nil {
		return m.storageError(err, "discard held cart")
	}
	if !deleted {
		return ErrNotFound
	}
	m.logg.Info(m.logg.WithField(ctx, "cart_id", cartID), "held cart discarded")
	return nil
}

// List returns held carts oldest first.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	rows, err := m.repo.List(ctx, m.registerID)
	if err != nil {
		return nil, m.storageError(err, "list held carts")
	}
	out := make([]Summary, 0, len(rows))
	for i := range rows {
		out = append(out, *summarize(&rows[i]))
	}
	return out, nil
}

// Get returns the full snapshot of a held cart without recalling it.
func (m *Manager) Get(ctx context.Context, cartID uuid.UUID) (*cart.State, error) {
	row, err := m.repo.FindByID(ctx, m.registerID, cartID)
	if err != nil {
		return nil, m.storageError(err, "load held cart")
	}
	if row == nil {
		return nil, ErrNotFound
	}
	var state cart.State
	if err := json.Unmarshal(row.Snapshot, &state); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "decode held cart")
	}
	return &state, nil
}

// PurgeHeldBefore removes carts parked since before cutoff.
func (m *Manager) PurgeHeldBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		ids, err = m.repo.WithTx(tx).DeleteHeldBefore(ctx, m.registerID, cutoff)
		return err
	})
	if err != nil {
		return nil, m.storageError(err, "purge held carts")
	}
	return ids, nil
}

func (m *Manager) toRow(state cart.State, label string, heldBy *uuid.UUID) (*models.HeldCart, error) {
	label = strings.TrimSpace(label)
	if label == "" && state.Customer != nil {
		label = state.Customer.Name
	}
	now := m.now().UTC()
	state.OnHold = true
	state.HoldLabel = label
	state.HeldAt = &now

	raw, err := json.Marshal(state)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart snapshot")
	}
	return &models.HeldCart{
		ID:         state.ID,
		RegisterID: m.registerID,
		Label:      label,
		HeldBy:     heldBy,
		LineCount:  len(state.Lines),
		Total:      state.Totals.Total,
		Snapshot:   raw,
		HeldAt:     now,
	}, nil
}

func (m *Manager) storageError(err error, op string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "cart is already held")
	}
	return pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, fmt.Sprintf("%s failed", op))
}

func decode(row *models.HeldCart) (*cart.Cart, error) {
	var state cart.State
	if err := json.Unmarshal(row.Snapshot, &state); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "decode held cart")
	}
	return cart.Restore(state)
}

func summarize(row *models.HeldCart) *Summary {
	return &Summary{
		ID:        row.ID,
		Label:     row.Label,
		LineCount: row.LineCount,
		Total:     row.Total,
		HeldBy:    row.HeldBy,
		HeldAt:    row.HeldAt,
	}
}
