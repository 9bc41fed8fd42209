package scheduler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/logger"
	"github.com/angelmondragon/pos-engine/pkg/outbox"
)

type pingStub struct {
	err error
}

func (p *pingStub) Ping(context.Context) error { return p.err }

type sinkStub struct {
	calls []bool
}

func (s *sinkStub) OnConnectivityChange(_ context.Context, online bool) (outbox.Result, error) {
	s.calls = append(s.calls, online)
	return outbox.Result{}, nil
}

func TestConnectivityProbeReportsReachability(t *testing.T) {
	ping := &pingStub{}
	sink := &sinkStub{}
	job, err := NewConnectivityProbeJob(ping, sink, time.Second, nil)
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	ping.err = errors.New("connection refused")
	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, []bool{true, false}, sink.calls)
}

type queueStub struct {
	refreshErr error
	exhausted  error
	refreshed  int
}

func (q *queueStub) RefreshMetrics(context.Context) error {
	q.refreshed++
	return q.refreshErr
}

func (q *queueStub) Exhausted(context.Context) error { return q.exhausted }

func TestQueueGaugeJob(t *testing.T) {
	q := &queueStub{exhausted: pkgerrors.New(pkgerrors.CodeRetryExhausted, "2 sync operations need a manual retry")}
	job, err := NewQueueGaugeJob(q, nil)
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 1, q.refreshed)

	q.refreshErr = errors.New("database is locked")
	require.Error(t, job.Run(context.Background()))
}

type purgeStub struct {
	cutoff time.Time
	ids    []uuid.UUID
}

func (p *purgeStub) PurgeHeldBefore(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	p.cutoff = cutoff
	return p.ids, nil
}

func TestHeldCartPurgeUsesMaxAge(t *testing.T) {
	now := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	purged := uuid.New()
	p := &purgeStub{ids: []uuid.UUID{purged}}
	var out bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "register", Output: &out, Format: "json"})

	job, err := NewHeldCartPurgeJob(p, 72*time.Hour, logg, func() time.Time { return now })
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, now.Add(-72*time.Hour), p.cutoff)
	require.Contains(t, out.String(), `"level":"warn"`)
	require.Contains(t, out.String(), purged.String())

	_, err = NewHeldCartPurgeJob(p, 0, nil, nil)
	require.Error(t, err)
}

type memRedis struct {
	values map[string]string
}

func (m *memRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memRedis) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockOnlyReleasesOwnLock(t *testing.T) {
	store := &memRedis{values: map[string]string{}}
	ctx := context.Background()
	a, err := NewRedisLock(store, "pos:lock:scheduler", time.Minute)
	require.NoError(t, err)
	b, err := NewRedisLock(store, "pos:lock:scheduler", time.Minute)
	require.NoError(t, err)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, b.Release(ctx))
	require.Len(t, store.values, 1)
	require.NoError(t, a.Release(ctx))
	require.Empty(t, store.values)
}
