package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/pos-engine/pkg/enums"
	"github.com/angelmondragon/pos-engine/pkg/outbox"
)

type api interface {
	CreateTransaction(ctx context.Context, req TransactionRequest) (Response, error)
	VoidTransaction(ctx context.Context, transactionID string, req VoidRequest) (Response, error)
	AdjustInventory(ctx context.Context, req InventoryAdjustmentRequest) (Response, error)
	UpsertCustomer(ctx context.Context, req CustomerRequest) (Response, error)
}

// VoidPayload is the queued data for a transaction void.
type VoidPayload struct {
	TransactionID string `json:"transactionId"`
	VoidRequest
}

// Dispatcher routes outbox deliveries to ledger endpoints.
type Dispatcher struct {
	client api
}

func NewDispatcher(client api) (*Dispatcher, error) {
	if client == nil {
		return nil, errors.New("ledger client is required")
	}
	return &Dispatcher{client: client}, nil
}

// Push implements outbox.Pusher. Transport failures are reported as
// unreachable so the queue pauses instead of burning every item's budget.
func (d *Dispatcher) Push(ctx context.Context, del outbox.Delivery) (outbox.Ack, error) {
	resp, err := d.route(ctx, del)
	if err != nil {
		if errors.Is(err, ErrTransport) {
			return outbox.Ack{}, outbox.MarkUnreachable(err)
		}
		return outbox.Ack{}, err
	}
	return outbox.Ack{RemoteID: resp.RemoteID, AlreadySynced: resp.AlreadySynced}, nil
}

func (d *Dispatcher) route(ctx context.Context, del outbox.Delivery) (Response, error) {
	switch {
	case del.Type == enums.SyncTransaction && del.Action == enums.SyncActionCreate:
		var req TransactionRequest
		if err := del.Decode(&req); err != nil {
			return Response{}, fmt.Errorf("decode transaction: %w", err)
		}
		return d.client.CreateTransaction(ctx, req)
	case del.Type == enums.SyncTransaction && del.Action == enums.SyncActionVoid:
		var req VoidPayload
		if err := del.Decode(&req); err != nil {
			return Response{}, fmt.Errorf("decode void: %w", err)
		}
		return d.client.VoidTransaction(ctx, req.TransactionID, req.VoidRequest)
	case del.Type == enums.SyncInventoryAdjustment && del.Action == enums.SyncActionAdjust:
		var req InventoryAdjustmentRequest
		if err := del.Decode(&req); err != nil {
			return Response{}, fmt.Errorf("decode inventory adjustment: %w", err)
		}
		return d.client.AdjustInventory(ctx, req)
	case del.Type == enums.SyncCustomer && del.Action == enums.SyncActionUpsert:
		var req CustomerRequest
		if err := del.Decode(&req); err != nil {
			return Response{}, fmt.Errorf("decode customer: %w", err)
		}
		return d.client.UpsertCustomer(ctx, req)
	default:
		return Response{}, fmt.Errorf("no ledger route for %s/%s", del.Type, del.Action)
	}
}
