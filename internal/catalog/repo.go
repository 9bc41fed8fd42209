package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/pos-engine/pkg/db/models"
)

// Repository reads and writes the register's local catalog and customer book.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	UpsertItem(ctx context.Context, item *models.CatalogItem) error
	FindItemByCode(ctx context.Context, code string) (*models.CatalogItem, error)
	FindItemByID(ctx context.Context, id uuid.UUID) (*models.CatalogItem, error)
	ListItems(ctx context.Context, query string, limit int) ([]models.CatalogItem, error)
	UpsertCustomer(ctx context.Context, customer *models.Customer) error
	FindCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	SetCustomerRemoteID(ctx context.Context, id uuid.UUID, remoteID string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) UpsertItem(ctx context.Context, item *models.CatalogItem) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"sku", "barcode", "name", "unit_price", "tax_rate", "weight_required", "active", "updated_at"}),
		}).
		Create(item).Error
}

// FindItemByCode matches an active item by barcode first, then by SKU.
func (r *repository) FindItemByCode(ctx context.Context, code string) (*models.CatalogItem, error) {
	for _, column := range []string{"barcode", "sku"} {
		var item models.CatalogItem
		err := r.db.WithContext(ctx).
			Where(column+" = ? AND active = ?", code, true).
			First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &item, nil
	}
	return nil, nil
}

func (r *repository) FindItemByID(ctx context.Context, id uuid.UUID) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) ListItems(ctx context.Context, query string, limit int) ([]models.CatalogItem, error) {
	q := r.db.WithContext(ctx).Where("active = ?", true)
	if query = strings.TrimSpace(query); query != "" {
		like := "%" + strings.ToLower(query) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var items []models.CatalogItem
	if err := q.Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) UpsertCustomer(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "email", "phone", "updated_at"}),
		}).
		Create(customer).Error
}

func (r *repository) FindCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repository) SetCustomerRemoteID(ctx context.Context, id uuid.UUID, remoteID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		Updates(map[string]any{"remote_id": remoteID, "updated_at": at.UTC()}).Error
}
