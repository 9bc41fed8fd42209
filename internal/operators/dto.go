package operators

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/enums"
)

// LoginRequest is what the register keypad sends.
type LoginRequest struct {
	OperatorID uuid.UUID `json:"operatorId" validate:"required"`
	PIN        string    `json:"pin" validate:"required,numeric,min=4,max=8"`
}

// LoginResponse carries the bearer token for the register UI.
type LoginResponse struct {
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	Operator    *OperatorDTO `json:"operator"`
}

// ProvisionRequest creates a new operator.
type ProvisionRequest struct {
	Name string             `json:"name" validate:"required,max=120"`
	Role enums.OperatorRole `json:"role" validate:"required,oneof=cashier manager"`
	PIN  string             `json:"pin" validate:"required,numeric,min=4,max=8"`
}

// OperatorDTO is the public view of an operator.
type OperatorDTO struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Role        enums.OperatorRole `json:"role"`
	LastLoginAt *time.Time         `json:"lastLoginAt,omitempty"`
}

func FromModel(op *models.Operator) *OperatorDTO {
	if op == nil {
		return nil
	}
	return &OperatorDTO{
		ID:          op.ID,
		Name:        op.Name,
		Role:        op.Role,
		LastLoginAt: op.LastLoginAt,
	}
}
