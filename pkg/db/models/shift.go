package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-engine/pkg/enums"
)

// Shift is one operator's custody of a register's cash drawer.
type Shift struct {
	ID             uuid.UUID         `gorm:"column:id;type:text;primaryKey" json:"id"`
	RegisterID     string            `gorm:"column:register_id;not null" json:"registerId"`
	OperatorID     uuid.UUID         `gorm:"column:operator_id;type:text;not null" json:"operatorId"`
	Status         enums.ShiftStatus `gorm:"column:status;not null;default:open" json:"status"`
	OpeningBalance decimal.Decimal   `gorm:"column:opening_balance;type:text;not null" json:"openingBalance"`
	ClosingBalance *decimal.Decimal  `gorm:"column:closing_balance;type:text" json:"closingBalance,omitempty"`
	ExpectedCash   *decimal.Decimal  `gorm:"column:expected_cash;type:text" json:"expectedCash,omitempty"`
	Variance       *decimal.Decimal  `gorm:"column:variance;type:text" json:"variance,omitempty"`
	Notes          *string           `gorm:"column:notes" json:"notes,omitempty"`
	StartedAt      time.Time         `gorm:"column:started_at;not null" json:"startedAt"`
	EndedAt        *time.Time        `gorm:"column:ended_at" json:"endedAt,omitempty"`
}

func (s *Shift) IsOpen() bool {
	return s.Status == enums.ShiftOpen
}
