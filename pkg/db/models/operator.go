package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pos-engine/pkg/enums"
)

// Operator is a person allowed to run the register; PINs are stored as argon2id hashes.
type Operator struct {
	ID          uuid.UUID          `gorm:"column:id;type:text;primaryKey"`
	Name        string             `gorm:"column:name;not null"`
	Role        enums.OperatorRole `gorm:"column:role;not null;default:cashier"`
	PINHash     string             `gorm:"column:pin_hash;not null"`
	Active      bool               `gorm:"column:active;not null;default:true"`
	LastLoginAt *time.Time         `gorm:"column:last_login_at"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
