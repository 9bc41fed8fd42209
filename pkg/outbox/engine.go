package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-engine/pkg/db/models"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/logger"
	"github.com/angelmondragon/pos-engine/pkg/metrics"
)

const (
	defaultMaxAttempts  = 5
	defaultBatchSize    = 50
	defaultPollInterval = 30 * time.Second
	defaultPushTimeout  = 10 * time.Second
)

type EngineParams struct {
	Repository   *Repository
	Pusher       Pusher
	Logger       *logger.Logger
	Metrics      *metrics.OutboxMetrics
	MaxAttempts  int
	BatchSize    int
	PollInterval time.Duration
	PushTimeout  time.Duration
	Now          func() time.Time
}

// Engine is a durable at-least-once delivery queue in front of the remote
// ledger. It knows nothing about payload semantics; hooks registered per
// operation type react to acknowledged deliveries.
type Engine struct {
	repo         *Repository
	pusher       Pusher
	logg         *logger.Logger
	metrics      *metrics.OutboxMetrics
	maxAttempts  int
	batchSize    int
	pollInterval time.Duration
	pushTimeout  time.Duration
	now          func() time.Time

	online   atomic.Bool
	inFlight atomic.Bool
	kick     chan struct{}

	hooksMu sync.RWMutex
	hooks   map[enums.SyncOperationType][]DeliveryHook

	statusMu   sync.Mutex
	lastSyncAt *time.Time
	lastError  string
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Repository == nil {
		return nil, errors.New("sync queue repository is required")
	}
	if params.Pusher == nil {
		return nil, errors.New("pusher is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := params.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	timeout := params.PushTimeout
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		repo:         params.Repository,
		pusher:       params.Pusher,
		logg:         logg,
		metrics:      params.Metrics,
		maxAttempts:  maxAttempts,
		batchSize:    batch,
		pollInterval: poll,
		pushTimeout:  timeout,
		now:          now,
		kick:         make(chan struct{}, 1),
		hooks:        map[enums.SyncOperationType][]DeliveryHook{},
	}
	e.online.Store(true)
	e.metrics.SetOnline(true)
	return e, nil
}

// MaxAttempts is the retry ceiling after which items freeze.
func (e *Engine) MaxAttempts() int {
	return e.maxAttempts
}

// OnDelivered registers a hook for acknowledged deliveries of the given type.
func (e *Engine) OnDelivered(t enums.SyncOperationType, hook DeliveryHook) {
	if hook == nil {
		return
	}
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.hooks[t] = append(e.hooks[t], hook)
}

// Enqueue pushes op immediately when the ledger is believed reachable and
// nothing older is waiting, and queues it durably when that push fails or is
// skipped.
func (e *Engine) Enqueue(ctx context.Context, op Operation) error {
	d, err := e.prepare(op)
	if err != nil {
		return err
	}
	backlog, _, err := e.repo.Counts(ctx, e.maxAttempts)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "count sync queue")
	}

	var (
		attempts  int
		lastError *string
		lastAt    *time.Time
	)
	if e.online.Load() && backlog == 0 {
		pushErr := e.deliver(ctx, d)
		if pushErr == nil {
			e.recordSuccess()
			e.logg.Debug(e.logg.WithFields(ctx, deliveryFields(d)), "outbox item delivered")
			return nil
		}
		e.recordFailure(pushErr)
		if IsUnreachable(pushErr) {
			e.goOffline(ctx)
		}
		attempts = 1
		msg := pushErr.Error()
		at := e.now().UTC()
		lastError, lastAt = &msg, &at
	}

	row, err := toRow(d, attempts, e.now())
	if err != nil {
		return err
	}
	row.LastError = lastError
	row.LastAttemptAt = lastAt
	if err := e.insert(ctx, e.repo.db.WithContext(ctx), row); err != nil {
		return err
	}
	e.refreshDepth(ctx)
	e.Kick()
	return nil
}

// EnqueueTx queues op on the caller's transaction without attempting a push,
// so the operation commits or rolls back with the caller's own writes. Call
// Kick after the commit to have it delivered promptly.
func (e *Engine) EnqueueTx(ctx context.Context, tx *gorm.DB, op Operation) error {
	d, err := e.prepare(op)
	if err != nil {
		return err
	}
	row, err := toRow(d, 0, e.now())
	if err != nil {
		return err
	}
	return e.insert(ctx, tx, row)
}

func (e *Engine) prepare(op Operation) (Delivery, error) {
	if err := op.validate(); err != nil {
		return Delivery{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sync operation")
	}
	env, err := op.envelope(e.now())
	if err != nil {
		return Delivery{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sync payload")
	}
	return Delivery{
		Type:     op.Type,
		Action:   op.Action,
		Key:      op.Key,
		Envelope: env,
	}, nil
}

func (e *Engine) insert(ctx context.Context, tx *gorm.DB, row models.SyncQueueItem) error {
	inserted, err := e.repo.Insert(tx, row)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "persist sync operation")
	}
	fields := rowFields(row)
	if !inserted {
		e.logg.Debug(e.logg.WithFields(ctx, fields), "outbox item already queued")
		return nil
	}
	e.logg.Info(e.logg.WithFields(ctx, fields), "outbox item queued")
	return nil
}

// Kick wakes the Run loop without blocking.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Result summarizes one ProcessQueue pass.
type Result struct {
	Attempted int
	Delivered int
	Failed    int
	Frozen    int
	// Skipped is set when another pass was already running.
	Skipped bool
	// Stopped is set when the ledger became unreachable mid-pass.
	Stopped bool
	// More is set when the batch was full and more items may be waiting.
	More bool
}

// ProcessQueue delivers retryable items in creation order. Overlapping calls
// return immediately with Skipped set.
func (e *Engine) ProcessQueue(ctx context.Context) (Result, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return Result{Skipped: true}, nil
	}
	defer e.inFlight.Store(false)

	var res Result
	items, err := e.repo.FetchRetryable(ctx, e.maxAttempts, e.batchSize)
	if err != nil {
		return res, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "load sync queue")
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		res.Attempted++

		d, decodeErr := fromRow(item)
		pushErr := decodeErr
		if pushErr == nil {
			pushErr = e.deliver(ctx, d)
		}
		if pushErr != nil && ctx.Err() != nil {
			// shutting down; the attempt says nothing about the ledger
			res.Attempted--
			break
		}

		if pushErr == nil {
			if err := e.repo.Delete(ctx, item.ID); err != nil {
				return res, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "remove delivered sync item")
			}
			res.Delivered++
			e.recordSuccess()
			e.logg.Info(e.logg.WithFields(ctx, rowFields(item)), "outbox item delivered")
			continue
		}

		res.Failed++
		e.recordFailure(pushErr)
		if err := e.repo.MarkFailed(ctx, item.ID, pushErr, e.now()); err != nil {
			return res, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "record sync failure")
		}
		item.Attempts++
		logCtx := e.logg.WithFields(ctx, rowFields(item))
		if item.Attempts >= e.maxAttempts {
			res.Frozen++
			e.metrics.IncFrozen(item.OperationType.String())
			e.logg.Error(logCtx, "outbox item frozen", pushErr)
		} else {
			e.logg.Warn(e.logg.WithField(logCtx, "error", pushErr.Error()), "outbox push failed")
		}

		if IsUnreachable(pushErr) {
			e.goOffline(ctx)
			res.Stopped = true
			break
		}
		// Later items wait behind a retryable failure so the ledger sees
		// operations in creation order. A frozen item no longer holds the line.
		if item.Attempts < e.maxAttempts {
			res.Stopped = true
			break
		}
	}

	res.More = !res.Stopped && len(items) == e.batchSize
	e.refreshDepth(ctx)
	return res, nil
}

func (e *Engine) deliver(ctx context.Context, d Delivery) error {
	pushCtx, cancel := context.WithTimeout(ctx, e.pushTimeout)
	defer cancel()

	started := time.Now()
	ack, err := e.pusher.Push(pushCtx, d)
	result := "ok"
	switch {
	case err == nil:
	case IsUnreachable(err):
		result = "unreachable"
	default:
		result = "failed"
	}
	e.metrics.ObservePush(d.Type.String(), result, time.Since(started))
	if err != nil {
		return err
	}
	if !e.online.Swap(true) {
		e.metrics.SetOnline(true)
	}

	e.hooksMu.RLock()
	hooks := append([]DeliveryHook(nil), e.hooks[d.Type]...)
	e.hooksMu.RUnlock()
	for _, hook := range hooks {
		if err := hook(ctx, d, ack); err != nil {
			return fmt.Errorf("after %s delivery: %w", d.Type, err)
		}
	}
	return nil
}

// RetryFailed re-arms every frozen item and wakes the processor.
func (e *Engine) RetryFailed(ctx context.Context) (int64, error) {
	n, err := e.repo.ResetFrozen(ctx, e.maxAttempts)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "reset failed sync items")
	}
	e.logg.Info(e.logg.WithField(ctx, "count", n), "outbox failed items re-armed")
	e.refreshDepth(ctx)
	e.Kick()
	return n, nil
}

// OnConnectivityChange records reachability. Going online runs a pass right away.
func (e *Engine) OnConnectivityChange(ctx context.Context, online bool) (Result, error) {
	was := e.online.Swap(online)
	e.metrics.SetOnline(online)
	if online == was {
		return Result{}, nil
	}
	if !online {
		e.logg.Warn(ctx, "remote ledger unreachable, queueing locally")
		return Result{}, nil
	}
	e.logg.Info(ctx, "remote ledger reachable, draining sync queue")
	return e.ProcessQueue(ctx)
}

func (e *Engine) goOffline(ctx context.Context) {
	if e.online.Swap(false) {
		e.metrics.SetOnline(false)
		e.logg.Warn(ctx, "remote ledger unreachable, queueing locally")
	}
}

// Online reports whether the ledger is currently believed reachable.
func (e *Engine) Online() bool {
	return e.online.Load()
}

// Run drives ProcessQueue on the poll interval and on Kick until ctx ends.
// Passes are skipped while offline; OnConnectivityChange resumes them.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	e.Kick()
	for {
		select {
		case <-ctx.Done():
			e.logg.Info(ctx, "outbox sync loop stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-e.kick:
		}
		if !e.online.Load() {
			continue
		}
		for {
			res, err := e.ProcessQueue(ctx)
			if err != nil {
				e.logg.Error(ctx, "outbox pass failed", err)
				break
			}
			if !res.More || res.Failed > 0 {
				break
			}
		}
	}
}

// Status is the sync indicator exposed to the register UI.
type Status struct {
	Online     bool       `json:"online"`
	Pending    int64      `json:"pending"`
	Failed     int64      `json:"failed"`
	InFlight   bool       `json:"inFlight"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	pending, frozen, err := e.repo.Counts(ctx, e.maxAttempts)
	if err != nil {
		return Status{}, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "count sync queue")
	}
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return Status{
		Online:     e.online.Load(),
		Pending:    pending,
		Failed:     frozen,
		InFlight:   e.inFlight.Load(),
		LastSyncAt: e.lastSyncAt,
		LastError:  e.lastError,
	}, nil
}

// FailedItem describes a frozen queue item.
type FailedItem struct {
	ID            uuid.UUID               `json:"id"`
	OperationType enums.SyncOperationType `json:"operationType"`
	Action        enums.SyncAction        `json:"action"`
	Key           string                  `json:"key"`
	Attempts      int                     `json:"attempts"`
	LastError     string                  `json:"lastError,omitempty"`
	LastAttemptAt *time.Time              `json:"lastAttemptAt,omitempty"`
	CreatedAt     time.Time               `json:"createdAt"`
}

func (e *Engine) Failed(ctx context.Context, limit int) ([]FailedItem, error) {
	if limit <= 0 {
		limit = e.batchSize
	}
	rows, err := e.repo.FetchFrozen(ctx, e.maxAttempts, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "list failed sync items")
	}
	items := make([]FailedItem, 0, len(rows))
	for _, row := range rows {
		item := FailedItem{
			ID:            row.ID,
			OperationType: row.OperationType,
			Action:        row.Action,
			Key:           row.IdempotencyKey,
			Attempts:      row.Attempts,
			LastAttemptAt: row.LastAttemptAt,
			CreatedAt:     row.CreatedAt,
		}
		if row.LastError != nil {
			item.LastError = *row.LastError
		}
		items = append(items, item)
	}
	return items, nil
}

// Exhausted returns a RETRY_EXHAUSTED error while frozen items exist.
func (e *Engine) Exhausted(ctx context.Context) error {
	_, frozen, err := e.repo.Counts(ctx, e.maxAttempts)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "count sync queue")
	}
	if frozen == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeRetryExhausted, fmt.Sprintf("%d sync operations need a manual retry", frozen)).
		WithDetails(map[string]any{"failed": frozen})
}

// RefreshMetrics republishes queue depth gauges.
func (e *Engine) RefreshMetrics(ctx context.Context) error {
	pending, frozen, err := e.repo.Counts(ctx, e.maxAttempts)
	if err != nil {
		return err
	}
	e.metrics.SetDepth(pending, frozen)
	return nil
}

func (e *Engine) refreshDepth(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	if err := e.RefreshMetrics(ctx); err != nil {
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "outbox depth refresh failed")
	}
}

func (e *Engine) recordSuccess() {
	at := e.now().UTC()
	e.statusMu.Lock()
	e.lastSyncAt = &at
	e.lastError = ""
	e.statusMu.Unlock()
}

func (e *Engine) recordFailure(err error) {
	e.statusMu.Lock()
	e.lastError = err.Error()
	e.statusMu.Unlock()
}

func toRow(d Delivery, attempts int, createdAt time.Time) (models.SyncQueueItem, error) {
	payload, err := json.Marshal(d.Envelope)
	if err != nil {
		return models.SyncQueueItem{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode sync envelope")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return models.SyncQueueItem{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate sync item id")
	}
	return models.SyncQueueItem{
		ID:             id,
		OperationType:  d.Type,
		Action:         d.Action,
		IdempotencyKey: d.Key,
		Payload:        payload,
		Attempts:       attempts,
		CreatedAt:      createdAt.UTC(),
	}, nil
}

func fromRow(row models.SyncQueueItem) (Delivery, error) {
	d := Delivery{
		ID:       row.ID,
		Type:     row.OperationType,
		Action:   row.Action,
		Key:      row.IdempotencyKey,
		Attempts: row.Attempts,
	}
	if err := json.Unmarshal(row.Payload, &d.Envelope); err != nil {
		return d, fmt.Errorf("decode sync envelope: %w", err)
	}
	return d, nil
}

func deliveryFields(d Delivery) map[string]any {
	return map[string]any{
		"operation_type":  d.Type,
		"action":          d.Action,
		"idempotency_key": d.Key,
	}
}

func rowFields(row models.SyncQueueItem) map[string]any {
	return map[string]any{
		"sync_item_id":    row.ID.String(),
		"operation_type":  row.OperationType,
		"action":          row.Action,
		"idempotency_key": row.IdempotencyKey,
		"attempts":        row.Attempts,
	}
}
