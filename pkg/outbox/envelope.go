package outbox

import (
	"encoding/json"
	"time"
)

const envelopeVersion = 1

// Actor identifies the register and operator that produced an operation.
type Actor struct {
	RegisterID string `json:"registerId"`
	OperatorID string `json:"operatorId,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in sync_queue.
type PayloadEnvelope struct {
	Version     int             `json:"version"`
	OperationID string          `json:"operationId"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Actor       *Actor          `json:"actor,omitempty"`
	Data        json.RawMessage `json:"data"`
}
