package transactions

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pos-engine/pkg/db"
	"github.com/angelmondragon/pos-engine/pkg/db/dbtest"
	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/outbox"
	"github.com/angelmondragon/pos-engine/pkg/pagination"
)

var testNow = time.Date(2026, 10, 19, 14, 3, 0, 0, time.UTC)

type fixture struct {
	client *db.Client
	svc    *Service
	engine *outbox.Engine
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	engine, err := outbox.NewEngine(outbox.EngineParams{
		Repository: outbox.NewRepository(client.DB()),
		Pusher: outbox.PusherFunc(func(context.Context, outbox.Delivery) (outbox.Ack, error) {
			return outbox.Ack{}, nil
		}),
		Now: func() time.Time { return testNow },
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:          NewRepository(client.DB()),
		Tx:            client,
		Outbox:        engine,
		RegisterID:    "reg-01",
		LocationID:    "store-1",
		ReceiptPrefix: "R",
		StoreName:     "Corner Shop",
		Now:           func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return fixture{client: client, svc: svc, engine: engine}
}

func (f fixture) queued(t *testing.T) []models.SyncQueueItem {
	t.Helper()
	var rows []models.SyncQueueItem
	require.NoError(t, f.client.DB().Order("created_at ASC, id ASC").Find(&rows).Error)
	return rows
}

func sampleTxn(operatorID uuid.UUID, cashKept string) *models.Transaction {
	cash := decimal.RequireFromString(cashKept)
	return &models.Transaction{
		ID:         uuid.New(),
		OperatorID: operatorID,
		Currency:   enums.CurrencyUSD,
		Lines: []models.TransactionLine{
			{
				LineID:    uuid.New(),
				ItemID:    "coffee",
				Name:      "Coffee",
				Quantity:  decimal.NewFromInt(2),
				UnitPrice: decimal.RequireFromString("4.50"),
				Gross:     decimal.RequireFromString("9.00"),
				Total:     decimal.RequireFromString("9.00"),
			},
			{
				LineID:         uuid.New(),
				ItemID:         "beans",
				Name:           "Beans 1kg",
				Quantity:       decimal.NewFromInt(1),
				UnitPrice:      decimal.RequireFromString("11.00"),
				Gross:          decimal.RequireFromString("11.00"),
				DiscountAmount: decimal.RequireFromString("1.00"),
				Tax:            decimal.RequireFromString("2.65"),
				Total:          decimal.RequireFromString("12.65"),
			},
		},
		Tenders: []models.TransactionTender{
			{ID: uuid.New(), Method: enums.TenderCash, Amount: decimal.NewFromInt(25), CreatedAt: testNow},
		},
		Subtotal:      decimal.RequireFromString("20.00"),
		DiscountTotal: decimal.RequireFromString("1.00"),
		TaxTotal:      decimal.RequireFromString("2.65"),
		Total:         decimal.RequireFromString("21.65"),
		Tendered:      decimal.NewFromInt(25),
		ChangeDue:     decimal.RequireFromString("3.35"),
		CashAmount:    cash,
		CreatedAt:     testNow,
	}
}

func TestRecordAssignsReceiptAndQueuesLedgerWork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	op := uuid.New()

	first, err := f.svc.Record(ctx, sampleTxn(op, "21.65"))
	require.NoError(t, err)
	require.Equal(t, "R-000001", first.ReceiptNumber)
	require.Equal(t, "reg-01", first.RegisterID)
	require.Equal(t, enums.TransactionCompleted, first.Status)

	second, err := f.svc.Record(ctx, sampleTxn(op, "0"))
	require.NoError(t, err)
	require.Equal(t, "R-000002", second.ReceiptNumber)

	rows := f.queued(t)
	require.Len(t, rows, 6)
	require.Equal(t, enums.SyncTransaction, rows[0].OperationType)
	require.Equal(t, first.ID.String(), rows[0].IdempotencyKey)

	var adjustments int
	for _, r := range rows {
		if r.OperationType == enums.SyncInventoryAdjustment {
			adjustments++
		}
	}
	require.Equal(t, 4, adjustments)
}

func TestRecordIsIdempotentByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := sampleTxn(uuid.New(), "21.65")

	first, err := f.svc.Record(ctx, txn)
	require.NoError(t, err)
	again, err := f.svc.Record(ctx, txn)
	require.NoError(t, err)

	require.Equal(t, first.ReceiptNumber, again.ReceiptNumber)
	require.Len(t, f.queued(t), 3)

	var count int64
	require.NoError(t, f.client.DB().Model(&models.Transaction{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestRecordRejectsEmptySale(t *testing.T) {
	f := newFixture(t)
	txn := sampleTxn(uuid.New(), "0")
	txn.Lines = nil

	_, err := f.svc.Record(context.Background(), txn)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestVoidQueuesReversal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	manager := uuid.New()

	txn, err := f.svc.Record(ctx, sampleTxn(uuid.New(), "21.65"))
	require.NoError(t, err)

	voided, err := f.svc.Void(ctx, txn.ID, manager, "customer changed mind")
	require.NoError(t, err)
	require.True(t, voided.IsVoided())
	require.Equal(t, manager, *voided.VoidedBy)

	stored, err := f.svc.Get(ctx, txn.ID)
	require.NoError(t, err)
	require.Equal(t, enums.TransactionVoided, stored.Status)
	require.Equal(t, "customer changed mind", *stored.VoidReason)

	var voids, restocks int
	for _, r := range f.queued(t) {
		if r.Action == enums.SyncActionVoid {
			voids++
			require.Equal(t, txn.ID.String(), r.IdempotencyKey)
		}
		if r.OperationType == enums.SyncInventoryAdjustment {
			restocks++
		}
	}
	require.Equal(t, 1, voids)
	require.Equal(t, 4, restocks)

	_, err = f.svc.Void(ctx, txn.ID, manager, "again")
	require.ErrorIs(t, err, ErrAlreadyVoided)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestVoidValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Void(ctx, uuid.New(), uuid.New(), "  ")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Void(ctx, uuid.New(), uuid.New(), "mistake")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCashCollectedSkipsVoidedAndOtherOperators(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	op := uuid.New()

	_, err := f.svc.Record(ctx, sampleTxn(op, "21.65"))
	require.NoError(t, err)
	_, err = f.svc.Record(ctx, sampleTxn(op, "10.00"))
	require.NoError(t, err)
	voided, err := f.svc.Record(ctx, sampleTxn(op, "5.00"))
	require.NoError(t, err)
	_, err = f.svc.Void(ctx, voided.ID, op, "wrong item")
	require.NoError(t, err)
	_, err = f.svc.Record(ctx, sampleTxn(uuid.New(), "99.00"))
	require.NoError(t, err)

	early := sampleTxn(op, "7.00")
	early.CreatedAt = testNow.Add(-2 * time.Hour)
	_, err = f.svc.Record(ctx, early)
	require.NoError(t, err)

	total, err := f.svc.CashCollected(ctx, "reg-01", op, testNow.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("31.65").Equal(total), total.String())
}

func TestHandleDeliveredMarksSynced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn, err := f.svc.Record(ctx, sampleTxn(uuid.New(), "21.65"))
	require.NoError(t, err)

	err = f.svc.HandleDelivered(ctx, outbox.Delivery{
		Type:   enums.SyncTransaction,
		Action: enums.SyncActionCreate,
		Key:    txn.ID.String(),
	}, outbox.Ack{RemoteID: "ERP-778"})
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RemoteID)
	require.Equal(t, "ERP-778", *stored.RemoteID)
	require.NotNil(t, stored.SyncedAt)

	require.NoError(t, f.svc.HandleDelivered(ctx, outbox.Delivery{Type: enums.SyncTransaction, Action: enums.SyncActionVoid, Key: "x"}, outbox.Ack{}))
}

func TestProcessQueueRunsSyncHook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.OnDelivered(enums.SyncTransaction, f.svc.HandleDelivered)

	txn, err := f.svc.Record(ctx, sampleTxn(uuid.New(), "21.65"))
	require.NoError(t, err)

	res, err := f.engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, res.Delivered)
	require.Empty(t, f.queued(t))

	stored, err := f.svc.Get(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SyncedAt)
}

func TestRenderReceipt(t *testing.T) {
	txn := sampleTxn(uuid.New(), "21.65")
	txn.ReceiptNumber = "R-000042"
	txn.Tenders = append(txn.Tenders, models.TransactionTender{Method: enums.TenderGiftCard, Amount: decimal.Zero, Reference: "GC-12345678"})

	out := RenderReceipt(txn, ReceiptHeader{StoreName: "Corner Shop", RegisterID: "reg-01"}, 40)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	require.Equal(t, "*Corner Shop", lines[0])
	require.Contains(t, out, "Receipt R-000042")
	require.Contains(t, out, "2 x Coffee")
	require.Contains(t, out, "-1.00")
	require.Contains(t, out, "gift card ...5678")
	for _, l := range lines[1:] {
		require.LessOrEqual(t, len(l), 40, l)
	}
	last := lines[len(lines)-1]
	require.True(t, strings.HasPrefix(last, "Change"))
	require.True(t, strings.HasSuffix(last, "3.35"))
	require.NotContains(t, out, "VOID")

	txn.Status = enums.TransactionVoided
	require.Contains(t, RenderReceipt(txn, ReceiptHeader{}, 32), "*** VOID ***")
}

func TestListPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	op := uuid.New()
	for i := 0; i < 3; i++ {
		_, err := f.svc.Record(ctx, sampleTxn(op, "0"))
		require.NoError(t, err)
	}

	first, err := f.svc.List(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	cursor, err := pagination.ParseCursor(first.NextCursor)
	require.NoError(t, err)
	second, err := f.svc.List(ctx, ListFilter{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	require.Empty(t, second.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, txn := range append(first.Items, second.Items...) {
		seen[txn.ID] = true
	}
	require.Len(t, seen, 3)
}
