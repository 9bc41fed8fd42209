package ledgersim

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind names the write an Event records.
type EventKind string

const (
	EventTransaction         EventKind = "transaction"
	EventVoid                EventKind = "void"
	EventInventoryAdjustment EventKind = "inventory_adjustment"
	EventCustomer            EventKind = "customer"
)

// Event is the append-only log of every write the ledger accepted. The key
// is the operation identity, so a replayed operation finds its first event.
type Event struct {
	Key        string    `gorm:"column:op_key;primaryKey"`
	Kind       EventKind `gorm:"column:kind;not null;index"`
	SubjectID  string    `gorm:"column:subject_id;not null;index"`
	RegisterID string    `gorm:"column:register_id"`
	RemoteID   string    `gorm:"column:remote_id;not null"`
	Payload    string    `gorm:"column:payload;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

func (Event) TableName() string { return "ledger_events" }

type Transaction struct {
	ID            string          `gorm:"column:id;primaryKey"`
	RegisterID    string          `gorm:"column:register_id;not null;index"`
	ReceiptNumber string          `gorm:"column:receipt_number;not null"`
	Currency      string          `gorm:"column:currency"`
	Total         decimal.Decimal `gorm:"column:total;type:text;not null"`
	RemoteID      string          `gorm:"column:remote_id;not null"`
	VoidReason    *string         `gorm:"column:void_reason"`
	VoidedAt      *time.Time      `gorm:"column:voided_at"`
	CreatedAt     time.Time       `gorm:"column:created_at;not null"`
}

func (Transaction) TableName() string { return "ledger_transactions" }

// StockLevel is on-hand quantity per item and location.
type StockLevel struct {
	ItemID     string          `gorm:"column:item_id;primaryKey"`
	LocationID string          `gorm:"column:location_id;primaryKey"`
	Quantity   decimal.Decimal `gorm:"column:quantity;type:text;not null"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;not null"`
}

func (StockLevel) TableName() string { return "ledger_stock_levels" }

type Customer struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Email     string    `gorm:"column:email"`
	Phone     string    `gorm:"column:phone"`
	RemoteID  string    `gorm:"column:remote_id;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Customer) TableName() string { return "ledger_customers" }

// Models lists every table the simulator owns.
func Models() []any {
	return []any{&Event{}, &Transaction{}, &StockLevel{}, &Customer{}}
}
