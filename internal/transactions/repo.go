package transactions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	"github.com/angelmondragon/pos-engine/pkg/pagination"
)

// Repository persists completed sales. Rows are immutable apart from the void
// and sync bookkeeping columns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, txn *models.Transaction) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	List(ctx context.Context, filter ListFilter) ([]models.Transaction, error)
	MarkVoided(ctx context.Context, id, operatorID uuid.UUID, reason string, at time.Time) (bool, error)
	MarkSynced(ctx context.Context, id uuid.UUID, remoteID string, at time.Time) error
	CashAmounts(ctx context.Context, registerID string, operatorID uuid.UUID, since time.Time) ([]decimal.Decimal, error)
	NextReceiptValue(ctx context.Context, registerID string, at time.Time) (int64, error)
}

// ListFilter narrows the transaction history view.
type ListFilter struct {
	RegisterID string
	OperatorID *uuid.UUID
	ShiftID    *uuid.UUID
	Status     *enums.TransactionStatus
	Since      *time.Time
	// Cursor resumes after the last row of a previous page.
	Cursor *pagination.Cursor
	Limit  int
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a transaction repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Insert stores txn unless a row with the same id exists, in which case it
// reports false and leaves the stored row untouched.
func (r *repository) Insert(ctx context.Context, txn *models.Transaction) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(txn)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Transaction, error) {
	q := r.db.WithContext(ctx).Model(&models.Transaction{})
	if filter.RegisterID != "" {
		q = q.Where("register_id = ?", filter.RegisterID)
	}
	if filter.OperatorID != nil {
		q = q.Where("operator_id = ?", *filter.OperatorID)
	}
	if filter.ShiftID != nil {
		q = q.Where("shift_id = ?", *filter.ShiftID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.Since != nil {
		q = q.Where("created_at >= ?", filter.Since.UTC())
	}
	if c := filter.Cursor; c != nil {
		at := c.CreatedAt.UTC()
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", at, at, c.ID)
	}
	var rows []models.Transaction
	err := q.Order("created_at DESC").Order("id DESC").Limit(pagination.LimitWithBuffer(filter.Limit)).Find(&rows).Error
	return rows, err
}

// MarkVoided flips a completed sale to voided. It reports false when the row
// is missing or already voided.
func (r *repository) MarkVoided(ctx context.Context, id, operatorID uuid.UUID, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionCompleted).
		Updates(map[string]any{
			"status":      enums.TransactionVoided,
			"void_reason": reason,
			"voided_by":   operatorID,
			"voided_at":   at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkSynced(ctx context.Context, id uuid.UUID, remoteID string, at time.Time) error {
	updates := map[string]any{"synced_at": at.UTC()}
	if remoteID != "" {
		updates["remote_id"] = remoteID
	}
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// CashAmounts returns the drawer cash of every non-voided sale rung up by the
// operator on the register at or after since.
func (r *repository) CashAmounts(ctx context.Context, registerID string, operatorID uuid.UUID, since time.Time) ([]decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("register_id = ? AND operator_id = ? AND status = ? AND created_at >= ?",
			registerID, operatorID, enums.TransactionCompleted, since.UTC()).
		Pluck("cash_amount", &amounts).Error
	return amounts, err
}

// NextReceiptValue bumps and returns the register's receipt counter. Call it
// inside the transaction that stores the sale so a rollback gives the number back.
func (r *repository) NextReceiptValue(ctx context.Context, registerID string, at time.Time) (int64, error) {
	err := r.db.WithContext(ctx).Exec(`
		INSERT INTO receipt_sequences (register_id, last_value, updated_at)
		VALUES (?, 1, ?)
		ON CONFLICT (register_id) DO UPDATE
		SET last_value = receipt_sequences.last_value + 1, updated_at = excluded.updated_at`,
		registerID, at.UTC()).Error
	if err != nil {
		return 0, err
	}
	var seq models.ReceiptSequence
	if err := r.db.WithContext(ctx).Where("register_id = ?", registerID).First(&seq).Error; err != nil {
		return 0, err
	}
	return seq.LastValue, nil
}
