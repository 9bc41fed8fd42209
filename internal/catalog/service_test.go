package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pos-engine/internal/cart"
	"github.com/angelmondragon/pos-engine/pkg/db"
	"github.com/angelmondragon/pos-engine/pkg/db/dbtest"
	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/ledger"
	"github.com/angelmondragon/pos-engine/pkg/outbox"
)

var testNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

type fixture struct {
	client *db.Client
	svc    *Service
	engine *outbox.Engine
}

func newFixture(t *testing.T, push outbox.PusherFunc) fixture {
	t.Helper()
	client := dbtest.Open(t)
	if push == nil {
		push = func(context.Context, outbox.Delivery) (outbox.Ack, error) { return outbox.Ack{}, nil }
	}
	engine, err := outbox.NewEngine(outbox.EngineParams{
		Repository: outbox.NewRepository(client.DB()),
		Pusher:     push,
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(client.DB()),
		Tx:     client,
		Outbox: engine,
		Now:    func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return fixture{client: client, svc: svc, engine: engine}
}

func TestLookupByBarcodeAndSKU(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	saved, err := f.svc.SaveItem(ctx, ItemInput{
		SKU:            "APL-GALA",
		Barcode:        "4011",
		Name:           "Gala apples",
		UnitPrice:      decimal.RequireFromString("2.49"),
		WeightRequired: true,
	})
	require.NoError(t, err)

	byBarcode, err := f.svc.Lookup(ctx, "4011")
	require.NoError(t, err)
	require.Equal(t, saved.ID.String(), byBarcode.ID)
	require.True(t, byBarcode.WeightRequired)
	require.True(t, decimal.RequireFromString("2.49").Equal(byBarcode.UnitPrice))

	bySKU, err := f.svc.Lookup(ctx, " APL-GALA ")
	require.NoError(t, err)
	require.Equal(t, byBarcode, bySKU)

	_, err = f.svc.Lookup(ctx, "nope")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.Lookup(ctx, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestInactiveItemsAreNotSold(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	saved, err := f.svc.SaveItem(ctx, ItemInput{SKU: "MUG", Name: "Mug", UnitPrice: decimal.NewFromInt(8)})
	require.NoError(t, err)
	_, err = f.svc.Lookup(ctx, "MUG")
	require.NoError(t, err)

	_, err = f.svc.SaveItem(ctx, ItemInput{ID: &saved.ID, SKU: "MUG", Name: "Mug", UnitPrice: decimal.NewFromInt(8), Inactive: true})
	require.NoError(t, err)
	_, err = f.svc.Lookup(ctx, "MUG")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	items, err := f.svc.Items(ctx, "", 0)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestSaveItemRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.SaveItem(ctx, ItemInput{Name: "No sku"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.SaveItem(ctx, ItemInput{SKU: "X", Name: "X", UnitPrice: decimal.NewFromInt(-1)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.SaveItem(ctx, ItemInput{SKU: "DUP", Name: "First"})
	require.NoError(t, err)
	_, err = f.svc.SaveItem(ctx, ItemInput{SKU: "DUP", Name: "Second"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestItemsSearch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, in := range []ItemInput{
		{SKU: "TEA-01", Name: "Green tea"},
		{SKU: "TEA-02", Name: "Black tea"},
		{SKU: "COF-01", Name: "Espresso beans"},
	} {
		_, err := f.svc.SaveItem(ctx, in)
		require.NoError(t, err)
	}

	items, err := f.svc.Items(ctx, "TEA", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Black tea", items[0].Name)
}

func TestSaveCustomerQueuesUpsert(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	saved, err := f.svc.SaveCustomer(ctx, cart.Customer{Name: "Ada Park", Email: "ada@example.com"}, &outbox.Actor{RegisterID: "reg-01"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, saved.ID)

	row, err := f.svc.Customer(ctx, saved.ID)
	require.NoError(t, err)
	require.Equal(t, "Ada Park", row.Name)
	require.Nil(t, row.Phone)

	var queued []models.SyncQueueItem
	require.NoError(t, f.client.DB().Find(&queued).Error)
	require.Len(t, queued, 1)
	require.Equal(t, enums.SyncCustomer, queued[0].OperationType)
	require.Equal(t, enums.SyncActionUpsert, queued[0].Action)

	_, err = f.svc.SaveCustomer(ctx, cart.Customer{Name: "", Email: "bad"}, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Customer(ctx, uuid.New())
	require.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestDeliveredCustomerGetsRemoteID(t *testing.T) {
	var pushed ledger.CustomerRequest
	f := newFixture(t, func(_ context.Context, d outbox.Delivery) (outbox.Ack, error) {
		require.NoError(t, d.Decode(&pushed))
		return outbox.Ack{RemoteID: "cust-remote-1"}, nil
	})
	f.engine.OnDelivered(enums.SyncCustomer, f.svc.HandleDelivered)
	ctx := context.Background()

	saved, err := f.svc.SaveCustomer(ctx, cart.Customer{Name: "Ada Park", Phone: "555-0101"}, nil)
	require.NoError(t, err)

	res, err := f.engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Delivered)
	require.Equal(t, saved.ID.String(), pushed.ID)
	require.Equal(t, "555-0101", pushed.Phone)

	row, err := f.svc.Customer(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, row.RemoteID)
	require.Equal(t, "cust-remote-1", *row.RemoteID)

	again, err := f.svc.SaveCustomer(ctx, cart.Customer{ID: saved.ID, Name: "Ada Park-Lee"}, nil)
	require.NoError(t, err)
	require.Equal(t, "cust-remote-1", again.RemoteID)
}
