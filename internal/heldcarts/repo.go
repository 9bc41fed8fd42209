package heldcarts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-engine/pkg/db/models"
)

// Repository persists suspended carts for a register.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, held *models.HeldCart) error
	FindByID(ctx context.Context, registerID string, id uuid.UUID) (*models.HeldCart, error)
	Delete(ctx context.Context, registerID string, id uuid.UUID) (bool, error)
	List(ctx context.Context, registerID string) ([]models.HeldCart, error)
	DeleteHeldBefore(ctx context.Context, registerID string, cutoff time.Time) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a held cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, held *models.HeldCart) error {
	return r.db.WithContext(ctx).Create(held).Error
}

func (r *repository) FindByID(ctx context.Context, registerID string, id uuid.UUID) (*models.HeldCart, error) {
	var held models.HeldCart
	err := r.db.WithContext(ctx).
		Where("register_id = ? AND id = ?", registerID, id).
		First(&held).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &held, nil
}

func (r *repository) Delete(ctx context.Context, registerID string, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("register_id = ? AND id = ?", registerID, id).
		Delete(&models.HeldCart{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) List(ctx context.Context, registerID string) ([]models.HeldCart, error) {
	var held []models.HeldCart
	err := r.db.WithContext(ctx).
		Where("register_id = ?", registerID).
		Order("held_at ASC, id ASC").
		Find(&held).Error
	return held, err
}

// DeleteHeldBefore removes the register's carts held before cutoff and
// returns their ids.
func (r *repository) DeleteHeldBefore(ctx context.Context, registerID string, cutoff time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.HeldCart{}).
		Where("register_id = ? AND held_at < ?", registerID, cutoff).
		Order("held_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.HeldCart{}).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
