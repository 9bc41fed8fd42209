package operators

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pos-engine/pkg/auth/session"
	"github.com/angelmondragon/pos-engine/pkg/config"
	"github.com/angelmondragon/pos-engine/pkg/db/dbtest"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
)

type shiftStub map[uuid.UUID]bool

func (s shiftStub) HasOpenShift(_ context.Context, id uuid.UUID) (bool, error) {
	return s[id], nil
}

type countingLimiter struct {
	limit int
	seen  map[string]int
	err   error
}

func (l *countingLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.seen[key]++
	return l.seen[key] <= l.limit, nil
}

type windowStub struct {
	count int64
	scope string
}

func (w *windowStub) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	w.count++
	w.scope = scope
	return w.count <= limit, w.count, nil
}

func newService(t *testing.T, shifts shiftStub, limiter Limiter) *Service {
	t.Helper()
	client := dbtest.Open(t)
	sessions, err := session.NewManager(session.NewMemoryStore(), "reg-01", time.Hour)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(client.DB()),
		Sessions: sessions,
		Shifts:   shifts,
		Limiter:  limiter,
		JWTConfig: config.JWTConfig{
			Secret:            "test-secret",
			Issuer:            "pos-register",
			ExpirationMinutes: 60,
		},
		Password: config.PasswordConfig{
			ArgonMemoryKB:    64,
			ArgonTime:        1,
			ArgonParallelism: 1,
			ArgonSaltLen:     16,
			ArgonKeyLen:      32,
		},
		RegisterID: "reg-01",
	})
	require.NoError(t, err)
	return svc
}

func TestLoginAuthorizeLogout(t *testing.T) {
	svc := newService(t, shiftStub{}, nil)
	ctx := context.Background()

	op, err := svc.Provision(ctx, ProvisionRequest{Name: "Rosa", Role: enums.OperatorManager, PIN: "4821"})
	require.NoError(t, err)

	resp, err := svc.Login(ctx, LoginRequest{OperatorID: op.ID, PIN: "4821"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotNil(t, resp.Operator.LastLoginAt)

	claims, err := svc.Authorize(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, op.ID, claims.OperatorID)
	require.Equal(t, enums.OperatorManager, claims.Role)

	require.NoError(t, svc.Logout(ctx, claims))
	_, err = svc.Authorize(ctx, resp.AccessToken)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestLoginRejectsWrongPIN(t *testing.T) {
	svc := newService(t, shiftStub{}, nil)
	ctx := context.Background()

	op, err := svc.Provision(ctx, ProvisionRequest{Name: "Sam", Role: enums.OperatorCashier, PIN: "1111"})
	require.NoError(t, err)

	for _, req := range []LoginRequest{
		{OperatorID: op.ID, PIN: "2222"},
		{OperatorID: op.ID, PIN: "12"},
		{OperatorID: uuid.New(), PIN: "1111"},
		{PIN: "1111"},
	} {
		_, err := svc.Login(ctx, req)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized), req)
	}
}

func TestLogoutBlockedByOpenShift(t *testing.T) {
	shifts := shiftStub{}
	svc := newService(t, shifts, nil)
	ctx := context.Background()

	op, err := svc.Provision(ctx, ProvisionRequest{Name: "Sam", Role: enums.OperatorCashier, PIN: "1111"})
	require.NoError(t, err)
	resp, err := svc.Login(ctx, LoginRequest{OperatorID: op.ID, PIN: "1111"})
	require.NoError(t, err)
	claims, err := svc.Authorize(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, enums.OperatorCashier, claims.Role)

	shifts[op.ID] = true
	require.ErrorIs(t, svc.Logout(ctx, claims), ErrShiftStillOpen)

	_, err = svc.Authorize(ctx, resp.AccessToken)
	require.NoError(t, err)
}

func TestLoginIsThrottled(t *testing.T) {
	limiter := &countingLimiter{limit: 2, seen: map[string]int{}}
	svc := newService(t, shiftStub{}, limiter)
	ctx := context.Background()

	op, err := svc.Provision(ctx, ProvisionRequest{Name: "Sam", Role: enums.OperatorCashier, PIN: "1111"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := svc.Login(ctx, LoginRequest{OperatorID: op.ID, PIN: "9999"})
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	}
	_, err = svc.Login(ctx, LoginRequest{OperatorID: op.ID, PIN: "1111"})
	require.ErrorIs(t, err, ErrTooManyAttempts)

	limiter.err = errors.New("redis down")
	_, err = svc.Login(ctx, LoginRequest{OperatorID: op.ID, PIN: "1111"})
	require.NoError(t, err)
}

func TestProvisionValidates(t *testing.T) {
	svc := newService(t, shiftStub{}, nil)
	ctx := context.Background()

	_, err := svc.Provision(ctx, ProvisionRequest{Name: "Sam", Role: enums.OperatorCashier, PIN: "12ab"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.Provision(ctx, ProvisionRequest{Name: "Sam", Role: "owner", PIN: "1234"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Provision(ctx, ProvisionRequest{Name: "Zed", Role: enums.OperatorCashier, PIN: "1234"})
	require.NoError(t, err)
	_, err = svc.Provision(ctx, ProvisionRequest{Name: "Amy", Role: enums.OperatorCashier, PIN: "5678"})
	require.NoError(t, err)
	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Amy", list[0].Name)
}

func TestRedisLimiterScopesByKey(t *testing.T) {
	w := &windowStub{}
	l := NewRedisLimiter(w, 1, time.Minute)
	ok, err := l.Allow(context.Background(), "op-1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = l.Allow(context.Background(), "op-1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "pin:op-1", w.scope)
}
