package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pos-engine/pkg/enums"
)

// SyncQueueItem is a pending remote operation. Items whose attempts reached the
// configured ceiling are frozen until an explicit retry resets them.
type SyncQueueItem struct {
	ID             uuid.UUID               `gorm:"column:id;type:text;primaryKey"`
	OperationType  enums.SyncOperationType `gorm:"column:operation_type;not null"`
	Action         enums.SyncAction        `gorm:"column:action;not null"`
	IdempotencyKey string                  `gorm:"column:idempotency_key;not null"`
	Payload        json.RawMessage         `gorm:"column:payload;type:text;serializer:json;not null"`
	Attempts       int                     `gorm:"column:attempts;not null;default:0"`
	LastError      *string                 `gorm:"column:last_error"`
	LastAttemptAt  *time.Time              `gorm:"column:last_attempt_at"`
	CreatedAt      time.Time               `gorm:"column:created_at;not null"`
}

func (SyncQueueItem) TableName() string {
	return "sync_queue"
}
