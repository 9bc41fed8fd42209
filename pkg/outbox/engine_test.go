package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-engine/pkg/db"
	"github.com/angelmondragon/pos-engine/pkg/db/dbtest"
	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
)

// fakeLedger stores each key once and answers repeats as already synced.
type fakeLedger struct {
	mu       sync.Mutex
	failures int
	err      error
	// lostAck stores the push but still reports err, like a dropped response.
	lostAck bool
	stored  map[string]int
	calls   []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{stored: map[string]int{}}
}

func (f *fakeLedger) Push(_ context.Context, d Delivery) (Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, d.Key)
	if f.failures > 0 {
		f.failures--
		if f.lostAck && f.stored[d.Key] == 0 {
			f.stored[d.Key]++
		}
		return Ack{}, f.err
	}
	if f.stored[d.Key] > 0 {
		return Ack{RemoteID: "remote-" + d.Key, AlreadySynced: true}, nil
	}
	f.stored[d.Key]++
	return Ack{RemoteID: "remote-" + d.Key}, nil
}

func (f *fakeLedger) failNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
	f.err = err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newEngine(t *testing.T, pusher Pusher) (*Engine, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	c := &clock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
	engine, err := NewEngine(EngineParams{
		Repository:  NewRepository(client.DB()),
		Pusher:      pusher,
		MaxAttempts: 5,
		BatchSize:   10,
		PushTimeout: time.Second,
		Now:         c.Now,
	})
	require.NoError(t, err)
	return engine, client
}

func saleOp(key string) Operation {
	return Operation{
		Type:   enums.SyncTransaction,
		Action: enums.SyncActionCreate,
		Key:    key,
		Actor:  &Actor{RegisterID: "reg-01", OperatorID: "op-1"},
		Data:   map[string]any{"id": key, "total": "50.00"},
	}
}

func goOffline(t *testing.T, e *Engine) {
	t.Helper()
	_, err := e.OnConnectivityChange(context.Background(), false)
	require.NoError(t, err)
	require.False(t, e.Online())
}

func queued(t *testing.T, client *db.Client) []models.SyncQueueItem {
	t.Helper()
	var rows []models.SyncQueueItem
	require.NoError(t, client.DB().Order("created_at ASC").Find(&rows).Error)
	return rows
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	_, err := NewEngine(EngineParams{Pusher: newFakeLedger()})
	require.Error(t, err)
	_, err = NewEngine(EngineParams{Repository: &Repository{}})
	require.Error(t, err)
}

func TestEnqueueDeliversImmediatelyWithoutQueueing(t *testing.T) {
	ledger := newFakeLedger()
	engine, client := newEngine(t, ledger)

	var hooked []Ack
	engine.OnDelivered(enums.SyncTransaction, func(_ context.Context, d Delivery, ack Ack) error {
		var data map[string]any
		require.NoError(t, d.Decode(&data))
		require.Equal(t, "tx-1", data["id"])
		hooked = append(hooked, ack)
		return nil
	})

	require.NoError(t, engine.Enqueue(context.Background(), saleOp("tx-1")))

	require.Empty(t, queued(t, client))
	require.Equal(t, 1, ledger.stored["tx-1"])
	require.Len(t, hooked, 1)
	require.Equal(t, "remote-tx-1", hooked[0].RemoteID)

	status, err := engine.Status(context.Background())
	require.NoError(t, err)
	require.True(t, status.Online)
	require.Zero(t, status.Pending)
	require.NotNil(t, status.LastSyncAt)
}

func TestEnqueueQueuesWhenPushFails(t *testing.T) {
	ledger := newFakeLedger()
	ledger.failNext(1, errors.New("ledger returned 500"))
	engine, client := newEngine(t, ledger)

	require.NoError(t, engine.Enqueue(context.Background(), saleOp("tx-1")))

	rows := queued(t, client)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].Attempts)
	require.NotNil(t, rows[0].LastError)
	require.Contains(t, *rows[0].LastError, "ledger returned 500")
	require.True(t, engine.Online())

	d, err := fromRow(rows[0])
	require.NoError(t, err)
	require.Equal(t, "tx-1", d.Envelope.OperationID)
	require.Equal(t, "reg-01", d.Envelope.Actor.RegisterID)
}

func TestEnqueueWhileOfflineSkipsPush(t *testing.T) {
	ledger := newFakeLedger()
	engine, client := newEngine(t, ledger)
	goOffline(t, engine)

	require.NoError(t, engine.Enqueue(context.Background(), saleOp("tx-1")))
	require.NoError(t, engine.Enqueue(context.Background(), saleOp("tx-1")))

	require.Empty(t, ledger.calls)
	rows := queued(t, client)
	require.Len(t, rows, 1, "the same operation key is queued once")
	require.Zero(t, rows[0].Attempts)
}

func TestEnqueueRejectsInvalidOperation(t *testing.T) {
	engine, _ := newEngine(t, newFakeLedger())
	op := saleOp("")
	err := engine.Enqueue(context.Background(), op)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	op = saleOp("tx-1")
	op.Action = "explode"
	err = engine.Enqueue(context.Background(), op)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestOfflineSaleDeliveredOnFourthAttempt(t *testing.T) {
	ledger := newFakeLedger()
	engine, client := newEngine(t, ledger)
	goOffline(t, engine)
	ctx := context.Background()

	require.NoError(t, engine.Enqueue(ctx, saleOp("tx-50")))
	ledger.failNext(3, errors.New("ledger returned 503"))

	for i := 1; i <= 3; i++ {
		res, err := engine.ProcessQueue(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, res.Failed)
		require.Zero(t, res.Frozen)
		require.Equal(t, i, queued(t, client)[0].Attempts)
	}

	res, err := engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Delivered)
	require.Empty(t, queued(t, client))
	require.Equal(t, 1, ledger.stored["tx-50"])
	require.True(t, engine.Online(), "a successful push proves reachability")
}

func TestLostAcknowledgementDoesNotDuplicate(t *testing.T) {
	ledger := newFakeLedger()
	ledger.lostAck = true
	engine, client := newEngine(t, ledger)
	goOffline(t, engine)
	ctx := context.Background()

	var acks []Ack
	engine.OnDelivered(enums.SyncTransaction, func(_ context.Context, _ Delivery, ack Ack) error {
		acks = append(acks, ack)
		return nil
	})

	require.NoError(t, engine.Enqueue(ctx, saleOp("tx-1")))
	ledger.failNext(1, MarkUnreachable(context.DeadlineExceeded))

	res, err := engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	require.True(t, res.Stopped)

	res, err = engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Delivered)
	require.Empty(t, queued(t, client))
	require.Equal(t, 1, ledger.stored["tx-1"])
	require.Len(t, acks, 1)
	require.True(t, acks[0].AlreadySynced)
}

func TestExhaustedItemFreezesUntilRetried(t *testing.T) {
	ledger := newFakeLedger()
	engine, client := newEngine(t, ledger)
	goOffline(t, engine)
	ctx := context.Background()

	require.NoError(t, engine.Enqueue(ctx, saleOp("tx-1")))
	ledger.failNext(100, errors.New("rejected"))

	for i := 0; i < 5; i++ {
		res, err := engine.ProcessQueue(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, res.Failed)
		if i == 4 {
			require.Equal(t, 1, res.Frozen)
		}
	}

	res, err := engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Attempted, "frozen items are not retried automatically")
	require.Len(t, ledger.calls, 5)

	err = engine.Exhausted(ctx)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRetryExhausted))

	failed, err := engine.Failed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "tx-1", failed[0].Key)
	require.Equal(t, 5, failed[0].Attempts)
	require.Equal(t, "rejected", failed[0].LastError)

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	require.Zero(t, status.Pending)
	require.EqualValues(t, 1, status.Failed)

	ledger.failNext(0, nil)
	n, err := engine.RetryFailed(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Zero(t, queued(t, client)[0].Attempts)

	res, err = engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Delivered)
	require.NoError(t, engine.Exhausted(ctx))
}

func TestProcessQueueKeepsCreationOrder(t *testing.T) {
	ledger := newFakeLedger()
	engine, _ := newEngine(t, ledger)
	goOffline(t, engine)
	ctx := context.Background()

	keys := []string{"adj-3", "adj-1", "adj-2", "adj-0"}
	for _, key := range keys {
		op := saleOp(key)
		op.Type = enums.SyncInventoryAdjustment
		op.Action = enums.SyncActionAdjust
		require.NoError(t, engine.Enqueue(ctx, op))
	}

	res, err := engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, res.Delivered)
	require.Equal(t, keys, ledger.calls)
}

func adjustOp(key string) Operation {
	op := saleOp(key)
	op.Type = enums.SyncInventoryAdjustment
	op.Action = enums.SyncActionAdjust
	return op
}

func TestFailedItemHoldsLaterItems(t *testing.T) {
	ledger := newFakeLedger()
	engine, client := newEngine(t, ledger)
	goOffline(t, engine)
	ctx := context.Background()

	require.NoError(t, engine.Enqueue(ctx, adjustOp("adj-first")))
	require.NoError(t, engine.Enqueue(ctx, adjustOp("adj-second")))
	ledger.failNext(1, errors.New("ledger returned 503"))

	res, err := engine.OnConnectivityChange(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	require.Zero(t, res.Delivered)
	require.True(t, res.Stopped)
	require.Equal(t, []string{"adj-first"}, ledger.calls)
	require.Zero(t, ledger.stored["adj-second"])

	// a new operation does not jump ahead of the backlog
	require.NoError(t, engine.Enqueue(ctx, adjustOp("adj-third")))
	require.Equal(t, []string{"adj-first"}, ledger.calls)

	res, err = engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, res.Delivered)
	require.Equal(t, []string{"adj-first", "adj-first", "adj-second", "adj-third"}, ledger.calls)
	require.Empty(t, queued(t, client))
}

func TestFrozenItemDoesNotHoldTheLine(t *testing.T) {
	ledger := newFakeLedger()
	engine, client := newEngine(t, ledger)
	goOffline(t, engine)
	ctx := context.Background()

	require.NoError(t, engine.Enqueue(ctx, saleOp("tx-1")))
	ledger.failNext(4, errors.New("rejected"))
	for i := 0; i < 4; i++ {
		res, err := engine.ProcessQueue(ctx)
		require.NoError(t, err)
		require.True(t, res.Stopped)
	}

	require.NoError(t, engine.Enqueue(ctx, saleOp("tx-2")))
	ledger.failNext(1, errors.New("rejected"))
	res, err := engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Frozen)
	require.Equal(t, 1, res.Delivered)
	require.Equal(t, "tx-2", ledger.calls[len(ledger.calls)-1])

	rows := queued(t, client)
	require.Len(t, rows, 1)
	require.Equal(t, "tx-1", rows[0].IdempotencyKey)
}

func TestUnreachableLedgerEndsPass(t *testing.T) {
	ledger := newFakeLedger()
	engine, client := newEngine(t, ledger)
	goOffline(t, engine)
	ctx := context.Background()

	require.NoError(t, engine.Enqueue(ctx, saleOp("tx-1")))
	require.NoError(t, engine.Enqueue(ctx, saleOp("tx-2")))
	_, err := engine.OnConnectivityChange(ctx, true)
	require.NoError(t, err)
	require.Empty(t, queued(t, client))

	goOffline(t, engine)
	require.NoError(t, engine.Enqueue(ctx, saleOp("tx-3")))
	require.NoError(t, engine.Enqueue(ctx, saleOp("tx-4")))
	ledger.failNext(10, MarkUnreachable(errors.New("dial tcp: connection refused")))
	_, err = engine.OnConnectivityChange(ctx, true)
	require.NoError(t, err)

	require.False(t, engine.Online())
	rows := queued(t, client)
	require.Len(t, rows, 2)
	require.Equal(t, 1, rows[0].Attempts)
	require.Zero(t, rows[1].Attempts, "later items keep their budget")
}

func TestPushTimeoutCountsAsFailedAttempt(t *testing.T) {
	slow := PusherFunc(func(ctx context.Context, _ Delivery) (Ack, error) {
		<-ctx.Done()
		return Ack{}, ctx.Err()
	})
	client := dbtest.Open(t)
	engine, err := NewEngine(EngineParams{
		Repository:  NewRepository(client.DB()),
		Pusher:      slow,
		PushTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	goOffline(t, engine)
	ctx := context.Background()

	require.NoError(t, engine.Enqueue(ctx, saleOp("tx-1")))
	res, err := engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	require.True(t, res.Stopped)
	require.Equal(t, 1, queued(t, client)[0].Attempts)
}

func TestProcessQueueSkipsOverlappingPass(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := PusherFunc(func(context.Context, Delivery) (Ack, error) {
		close(entered)
		<-release
		return Ack{RemoteID: "r"}, nil
	})
	engine, _ := newEngine(t, blocking)
	goOffline(t, engine)
	ctx := context.Background()
	require.NoError(t, engine.Enqueue(ctx, saleOp("tx-1")))

	done := make(chan Result)
	go func() {
		res, _ := engine.ProcessQueue(ctx)
		done <- res
	}()
	<-entered

	res, err := engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.True(t, res.Skipped)

	close(release)
	first := <-done
	require.Equal(t, 1, first.Delivered)
}

func TestHookFailureKeepsItemQueued(t *testing.T) {
	ledger := newFakeLedger()
	engine, client := newEngine(t, ledger)
	goOffline(t, engine)
	ctx := context.Background()

	calls := 0
	engine.OnDelivered(enums.SyncTransaction, func(context.Context, Delivery, Ack) error {
		calls++
		if calls == 1 {
			return errors.New("disk full")
		}
		return nil
	})

	require.NoError(t, engine.Enqueue(ctx, saleOp("tx-1")))
	res, err := engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	require.Len(t, queued(t, client), 1)

	res, err = engine.ProcessQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Delivered)
	require.Equal(t, 1, ledger.stored["tx-1"])
}

func TestEnqueueTxFollowsCallerTransaction(t *testing.T) {
	engine, client := newEngine(t, newFakeLedger())
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, engine.EnqueueTx(ctx, tx, saleOp("tx-1")))
		return errors.New("sale not saved")
	})
	require.Error(t, err)
	require.Empty(t, queued(t, client))

	for i := 0; i < 2; i++ {
		err = client.WithTx(ctx, func(tx *gorm.DB) error {
			return engine.EnqueueTx(ctx, tx, saleOp("tx-1"))
		})
		require.NoError(t, err)
	}
	rows := queued(t, client)
	require.Len(t, rows, 1)
	require.Zero(t, rows[0].Attempts)
}

func TestRunDeliversOnKick(t *testing.T) {
	ledger := newFakeLedger()
	engine, client := newEngine(t, ledger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return engine.EnqueueTx(ctx, tx, saleOp("tx-1"))
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()
	engine.Kick()

	require.Eventually(t, func() bool {
		ledger.mu.Lock()
		defer ledger.mu.Unlock()
		return ledger.stored["tx-1"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
