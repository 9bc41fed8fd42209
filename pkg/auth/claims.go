package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/pos-engine/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	OperatorID uuid.UUID
	RegisterID string
	Role       enums.OperatorRole
	SessionID  string
}

// AccessTokenClaims represents the typed JWT issued to the register UI.
type AccessTokenClaims struct {
	OperatorID uuid.UUID          `json:"operator_id"`
	RegisterID string             `json:"register_id"`
	Role       enums.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}

// SessionID is the token's jti, which keys the server-side session.
func (c *AccessTokenClaims) SessionID() string {
	return c.ID
}
