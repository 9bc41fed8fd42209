package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pos-engine/pkg/logger"
	"github.com/angelmondragon/pos-engine/pkg/outbox"
)

// Pinger checks whether the remote ledger answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectivitySink receives probe results.
type ConnectivitySink interface {
	OnConnectivityChange(ctx context.Context, online bool) (outbox.Result, error)
}

// ConnectivityProbeJob pings the ledger and reports reachability to the sync
// engine, which drains the queue when the ledger comes back.
type ConnectivityProbeJob struct {
	pinger  Pinger
	sink    ConnectivitySink
	timeout time.Duration
	logg    *logger.Logger
}

func NewConnectivityProbeJob(pinger Pinger, sink ConnectivitySink, timeout time.Duration, logg *logger.Logger) (*ConnectivityProbeJob, error) {
	if pinger == nil || sink == nil {
		return nil, errors.New("pinger and sync engine are required")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &ConnectivityProbeJob{pinger: pinger, sink: sink, timeout: timeout, logg: logg}, nil
}

func (j *ConnectivityProbeJob) Name() string { return "connectivity_probe" }

// Run treats an unreachable ledger as a normal outcome, not a job failure.
func (j *ConnectivityProbeJob) Run(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, j.timeout)
	err := j.pinger.Ping(probeCtx)
	cancel()
	if err != nil {
		j.logg.Debug(j.logg.WithField(ctx, "error", err.Error()), "ledger probe failed")
	}
	_, syncErr := j.sink.OnConnectivityChange(ctx, err == nil)
	return syncErr
}

// QueueMonitor is the sync engine surface watched by QueueGaugeJob.
type QueueMonitor interface {
	RefreshMetrics(ctx context.Context) error
	Exhausted(ctx context.Context) error
}

// QueueGaugeJob republishes sync queue depth and warns while items are frozen.
type QueueGaugeJob struct {
	queue QueueMonitor
	logg  *logger.Logger
}

func NewQueueGaugeJob(queue QueueMonitor, logg *logger.Logger) (*QueueGaugeJob, error) {
	if queue == nil {
		return nil, errors.New("sync engine is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &QueueGaugeJob{queue: queue, logg: logg}, nil
}

func (j *QueueGaugeJob) Name() string { return "sync_queue_gauges" }

func (j *QueueGaugeJob) Run(ctx context.Context) error {
	if err := j.queue.RefreshMetrics(ctx); err != nil {
		return err
	}
	if err := j.queue.Exhausted(ctx); err != nil {
		j.logg.Warn(j.logg.WithField(ctx, "error", err.Error()), "sync items waiting for manual retry")
	}
	return nil
}

// HeldCartPurger drops held carts older than a cutoff and reports which.
type HeldCartPurger interface {
	PurgeHeldBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

// HeldCartPurgeJob removes carts that have been on hold longer than maxAge.
// Every removed cart is logged at warn level so the drop stays visible.
type HeldCartPurgeJob struct {
	purger HeldCartPurger
	maxAge time.Duration
	now    func() time.Time
	logg   *logger.Logger
}

func NewHeldCartPurgeJob(purger HeldCartPurger, maxAge time.Duration, logg *logger.Logger, now func() time.Time) (*HeldCartPurgeJob, error) {
	if purger == nil {
		return nil, errors.New("held cart manager is required")
	}
	if maxAge <= 0 {
		return nil, errors.New("held cart max age must be positive")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if now == nil {
		now = time.Now
	}
	return &HeldCartPurgeJob{purger: purger, maxAge: maxAge, now: now, logg: logg}, nil
}

func (j *HeldCartPurgeJob) Name() string { return "held_cart_purge" }

func (j *HeldCartPurgeJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.maxAge)
	ids, err := j.purger.PurgeHeldBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, id := range ids {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{"cart_id": id.String(), "cutoff": cutoff.UTC()}), "stale held cart purged")
	}
	return nil
}
