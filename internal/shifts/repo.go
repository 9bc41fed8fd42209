package shifts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/enums"
)

type Repository interface {
	Create(ctx context.Context, shift *models.Shift) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shift, error)
	FindOpenByOperator(ctx context.Context, operatorID uuid.UUID) (*models.Shift, error)
	FindOpenByRegister(ctx context.Context, registerID string) (*models.Shift, error)
	Close(ctx context.Context, shift *models.Shift) (bool, error)
	List(ctx context.Context, registerID string, limit int) ([]models.Shift, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, shift *models.Shift) error {
	return r.db.WithContext(ctx).Create(shift).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Shift, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindOpenByOperator(ctx context.Context, operatorID uuid.UUID) (*models.Shift, error) {
	return r.first(r.db.WithContext(ctx).Where("operator_id = ? AND status = ?", operatorID, enums.ShiftOpen))
}

func (r *repository) FindOpenByRegister(ctx context.Context, registerID string) (*models.Shift, error) {
	return r.first(r.db.WithContext(ctx).Where("register_id = ? AND status = ?", registerID, enums.ShiftOpen))
}

// Close writes the closing figures if the shift is still open.
func (r *repository) Close(ctx context.Context, shift *models.Shift) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Shift{}).
		Where("id = ? AND status = ?", shift.ID, enums.ShiftOpen).
		Updates(map[string]any{
			"status":          enums.ShiftClosed,
			"closing_balance": shift.ClosingBalance,
			"expected_cash":   shift.ExpectedCash,
			"variance":        shift.Variance,
			"notes":           shift.Notes,
			"ended_at":        shift.EndedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) List(ctx context.Context, registerID string, limit int) ([]models.Shift, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []models.Shift
	err := r.db.WithContext(ctx).
		Where("register_id = ?", registerID).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) first(q *gorm.DB) (*models.Shift, error) {
	var shift models.Shift
	err := q.First(&shift).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &shift, nil
}
