package models

import "time"

// ReceiptSequence stores the last receipt number issued per register.
type ReceiptSequence struct {
	RegisterID string    `gorm:"column:register_id;primaryKey"`
	LastValue  int64     `gorm:"column:last_value;not null;default:0"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}
