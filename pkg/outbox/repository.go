package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/pos-engine/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert queues item on tx. It reports false when an item with the same
// operation type, action and idempotency key is already queued.
func (r *Repository) Insert(tx *gorm.DB, item models.SyncQueueItem) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FetchRetryable returns items below the attempt ceiling in creation order.
func (r *Repository) FetchRetryable(ctx context.Context, maxAttempts, limit int) ([]models.SyncQueueItem, error) {
	var rows []models.SyncQueueItem
	err := r.db.WithContext(ctx).
		Where("attempts < ?", maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) FetchFrozen(ctx context.Context, maxAttempts, limit int) ([]models.SyncQueueItem, error) {
	var rows []models.SyncQueueItem
	err := r.db.WithContext(ctx).
		Where("attempts >= ?", maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.SyncQueueItem{}).Error
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, err error, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.SyncQueueItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":      err.Error(),
			"last_attempt_at": at.UTC(),
			"attempts":        gorm.Expr("attempts + 1"),
		}).Error
}

// ResetFrozen re-arms every item at or above the ceiling and returns how many were reset.
func (r *Repository) ResetFrozen(ctx context.Context, maxAttempts int) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.SyncQueueItem{}).
		Where("attempts >= ?", maxAttempts).
		Update("attempts", 0)
	return res.RowsAffected, res.Error
}

// Counts returns the number of retryable and frozen items.
func (r *Repository) Counts(ctx context.Context, maxAttempts int) (pending, frozen int64, err error) {
	if err = r.db.WithContext(ctx).Model(&models.SyncQueueItem{}).
		Where("attempts < ?", maxAttempts).
		Count(&pending).Error; err != nil {
		return 0, 0, err
	}
	if err = r.db.WithContext(ctx).Model(&models.SyncQueueItem{}).
		Where("attempts >= ?", maxAttempts).
		Count(&frozen).Error; err != nil {
		return 0, 0, err
	}
	return pending, frozen, nil
}
