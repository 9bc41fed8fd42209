package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pos-engine/pkg/enums"
)

// Operation is a side effect the remote ledger must eventually observe.
// Key is the stable identity the ledger deduplicates on; two operations with
// the same type, action and key are the same operation.
type Operation struct {
	Type       enums.SyncOperationType
	Action     enums.SyncAction
	Key        string
	Actor      *Actor
	Data       any
	OccurredAt time.Time
}

func (o Operation) validate() error {
	if !o.Type.IsValid() {
		return fmt.Errorf("invalid operation type %q", o.Type)
	}
	if !o.Action.IsValid() {
		return fmt.Errorf("invalid operation action %q", o.Action)
	}
	if strings.TrimSpace(o.Key) == "" {
		return errors.New("operation key is required")
	}
	return nil
}

func (o Operation) envelope(now time.Time) (PayloadEnvelope, error) {
	data, err := json.Marshal(o.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode %s payload: %w", o.Type, err)
	}
	occurred := o.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	return PayloadEnvelope{
		Version:     envelopeVersion,
		OperationID: o.Key,
		OccurredAt:  occurred.UTC(),
		Actor:       o.Actor,
		Data:        data,
	}, nil
}

// Delivery is one push attempt handed to a Pusher. ID is uuid.Nil for the
// immediate push made by Enqueue before anything is persisted.
type Delivery struct {
	ID       uuid.UUID
	Type     enums.SyncOperationType
	Action   enums.SyncAction
	Key      string
	Envelope PayloadEnvelope
	Attempts int
}

// Decode unmarshals the operation data into v.
func (d Delivery) Decode(v any) error {
	if len(d.Envelope.Data) == 0 {
		return errors.New("delivery has no data")
	}
	return json.Unmarshal(d.Envelope.Data, v)
}

// Ack is the ledger's confirmation of a push.
type Ack struct {
	RemoteID      string
	AlreadySynced bool
}

// Pusher delivers operations to the remote ledger. Implementations must be
// safe to call repeatedly with the same Delivery.Key.
type Pusher interface {
	Push(ctx context.Context, d Delivery) (Ack, error)
}

// PusherFunc adapts a function to Pusher.
type PusherFunc func(ctx context.Context, d Delivery) (Ack, error)

func (f PusherFunc) Push(ctx context.Context, d Delivery) (Ack, error) {
	return f(ctx, d)
}

// DeliveryHook runs after the ledger acknowledged a delivery. A hook error
// keeps the item queued; the next push is answered as already synced.
type DeliveryHook func(ctx context.Context, d Delivery, ack Ack) error

// ErrUnreachable marks transport failures: the ledger could not be reached at
// all, so the rest of the pass is skipped and the engine goes offline.
var ErrUnreachable = errors.New("remote ledger unreachable")

type unreachableError struct {
	cause error
}

func (e *unreachableError) Error() string {
	return fmt.Sprintf("%s: %v", ErrUnreachable, e.cause)
}

func (e *unreachableError) Unwrap() []error {
	return []error{ErrUnreachable, e.cause}
}

// MarkUnreachable wraps err so IsUnreachable reports true.
func MarkUnreachable(err error) error {
	if err == nil {
		return nil
	}
	return &unreachableError{cause: err}
}

// IsUnreachable reports transport failures, including push timeouts.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, context.DeadlineExceeded)
}
