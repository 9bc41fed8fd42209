package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HeldCart is a suspended sale keyed by the cart's own id. Snapshot holds the full cart state.
type HeldCart struct {
	ID         uuid.UUID       `gorm:"column:id;type:text;primaryKey"`
	RegisterID string          `gorm:"column:register_id;not null"`
	Label      string          `gorm:"column:label;not null;default:''"`
	HeldBy     *uuid.UUID      `gorm:"column:held_by;type:text"`
	LineCount  int             `gorm:"column:line_count;not null;default:0"`
	Total      decimal.Decimal `gorm:"column:total;type:text;not null"`
	Snapshot   json.RawMessage `gorm:"column:snapshot;type:text;serializer:json;not null"`
	HeldAt     time.Time       `gorm:"column:held_at;not null"`
}
