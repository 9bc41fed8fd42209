package ledgersim

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for the simulated ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindEvent(ctx context.Context, key string) (*Event, error)
	CreateEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, subjectID string) ([]Event, error)
	FindTransaction(ctx context.Context, id string) (*Transaction, error)
	CreateTransaction(ctx context.Context, txn *Transaction) error
	SaveTransaction(ctx context.Context, txn *Transaction) error
	FindStockLevel(ctx context.Context, itemID, locationID string) (*StockLevel, error)
	SaveStockLevel(ctx context.Context, level *StockLevel) error
	UpsertCustomer(ctx context.Context, customer *Customer) error
	FindCustomer(ctx context.Context, id string) (*Customer, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindEvent(ctx context.Context, key string) (*Event, error) {
	var event Event
	if err := r.db.WithContext(ctx).Where("op_key = ?", key).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) CreateEvent(ctx context.Context, event *Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListEvents(ctx context.Context, subjectID string) ([]Event, error) {
	var events []Event
	if err := r.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) FindTransaction(ctx context.Context, id string) (*Transaction, error) {
	var txn Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) SaveTransaction(ctx context.Context, txn *Transaction) error {
	return r.db.WithContext(ctx).Save(txn).Error
}

// FindStockLevel returns a zero level when the item has never been adjusted at the location.
func (r *repository) FindStockLevel(ctx context.Context, itemID, locationID string) (*StockLevel, error) {
	var level StockLevel
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND location_id = ?", itemID, locationID).
		First(&level).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &StockLevel{ItemID: itemID, LocationID: locationID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &level, nil
}

func (r *repository) SaveStockLevel(ctx context.Context, level *StockLevel) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}, {Name: "location_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(level).Error
}

func (r *repository) UpsertCustomer(ctx context.Context, customer *Customer) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "phone", "updated_at"}),
	}).Create(customer).Error
}

func (r *repository) FindCustomer(ctx context.Context, id string) (*Customer, error) {
	var customer Customer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}
