package ledgersim

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pos-engine/pkg/db/dbtest"
	"github.com/angelmondragon/pos-engine/pkg/ledger"
)

const testAPIKey = "sim-key"

type fakeClaims struct {
	held      map[string]bool
	forceHeld bool
	released  int
}

func newFakeClaims() *fakeClaims {
	return &fakeClaims{held: map[string]bool{}}
}

func (f *fakeClaims) Claim(_ context.Context, resource, key string) (bool, error) {
	if f.forceHeld {
		return true, nil
	}
	id := resource + ":" + key
	if f.held[id] {
		return true, nil
	}
	f.held[id] = true
	return false, nil
}

func (f *fakeClaims) Release(_ context.Context, resource, key string) error {
	delete(f.held, resource+":"+key)
	f.released++
	return nil
}

type simFixture struct {
	svc    *Service
	repo   Repository
	client *ledger.Client
	url    string
}

func newSim(t *testing.T, claims Claimer) simFixture {
	t.Helper()
	dbClient := dbtest.Open(t)
	require.NoError(t, dbClient.DB().AutoMigrate(Models()...))

	repo := NewRepository(dbClient.DB())
	svc, err := NewService(ServiceParams{
		Repo: repo,
		Tx:   dbClient,
		Now:  func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(HandlerParams{Service: svc, APIKey: testAPIKey, Claims: claims}))
	t.Cleanup(srv.Close)

	client, err := ledger.NewClient(srv.URL, ledger.WithAPIKey(testAPIKey), ledger.WithRegisterID("reg-01"))
	require.NoError(t, err)
	return simFixture{svc: svc, repo: repo, client: client, url: srv.URL}
}

func sampleSale(id string) ledger.TransactionRequest {
	return ledger.TransactionRequest{
		ID:            id,
		RegisterID:    "reg-01",
		ReceiptNumber: "R-000001",
		Currency:      "USD",
		Lines: []ledger.TransactionLine{{
			LineID:    "line-1",
			ItemID:    "item-lamp",
			Name:      "Lamp",
			Quantity:  decimal.NewFromInt(2),
			UnitPrice: decimal.RequireFromString("10.00"),
			Tax:       decimal.RequireFromString("1.65"),
			Total:     decimal.RequireFromString("21.65"),
		}},
		Tenders: []ledger.TransactionTender{{Method: "cash", Amount: decimal.RequireFromString("25.00")}},
		Totals: ledger.Totals{
			Subtotal:  decimal.RequireFromString("20.00"),
			TaxTotal:  decimal.RequireFromString("1.65"),
			Total:     decimal.RequireFromString("21.65"),
			Tendered:  decimal.RequireFromString("25.00"),
			ChangeDue: decimal.RequireFromString("3.35"),
		},
		CreatedAt: time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC),
	}
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var statusErr *ledger.StatusError
	require.True(t, errors.As(err, &statusErr), "expected status error, got %v", err)
	return statusErr.Status
}

func TestHealthAnswersPing(t *testing.T) {
	sim := newSim(t, nil)
	require.NoError(t, sim.client.Ping(context.Background()))
}

func TestCreateTransactionAppliesOnce(t *testing.T) {
	ctx := context.Background()
	sim := newSim(t, nil)
	id := "0b6f3c1e-7d0a-4e59-9a58-2f1c6d3e4b10"

	first, err := sim.client.CreateTransaction(ctx, sampleSale(id))
	require.NoError(t, err)
	assert.Equal(t, "ldg_txn_"+id, first.RemoteID)
	assert.False(t, first.AlreadySynced)

	again, err := sim.client.CreateTransaction(ctx, sampleSale(id))
	require.NoError(t, err)
	assert.Equal(t, first.RemoteID, again.RemoteID)
	assert.True(t, again.AlreadySynced)

	stored, err := sim.svc.Transaction(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(decimal.RequireFromString("21.65")))
	assert.Equal(t, "reg-01", stored.RegisterID)

	events, err := sim.svc.Events(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTransaction, events[0].Kind)
}

func TestCreateTransactionValidatesBody(t *testing.T) {
	sim := newSim(t, nil)
	sale := sampleSale("5a0d8e2c-1b4f-4c3a-9e7d-6f2b1a0c9d88")
	sale.Lines = nil

	_, err := sim.client.CreateTransaction(context.Background(), sale)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestVoidTransaction(t *testing.T) {
	ctx := context.Background()
	sim := newSim(t, nil)
	id := "c3d2e1f0-4a5b-4c6d-8e7f-9a0b1c2d3e4f"
	void := ledger.VoidRequest{VoidedAt: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC), Reason: "customer changed mind"}

	_, err := sim.client.VoidTransaction(ctx, id, void)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	_, err = sim.client.CreateTransaction(ctx, sampleSale(id))
	require.NoError(t, err)

	first, err := sim.client.VoidTransaction(ctx, id, void)
	require.NoError(t, err)
	assert.False(t, first.AlreadySynced)

	second, err := sim.client.VoidTransaction(ctx, id, void)
	require.NoError(t, err)
	assert.True(t, second.AlreadySynced)

	stored, err := sim.svc.Transaction(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored.VoidReason)
	assert.Equal(t, "customer changed mind", *stored.VoidReason)
}

func TestAdjustInventoryAppliesOncePerID(t *testing.T) {
	ctx := context.Background()
	sim := newSim(t, nil)
	adj := ledger.InventoryAdjustmentRequest{
		ID:         "adj-1",
		ItemID:     "item-lamp",
		LocationID: "main",
		Delta:      decimal.NewFromInt(-2),
		Reason:     "sale",
	}

	_, err := sim.client.AdjustInventory(ctx, adj)
	require.NoError(t, err)
	replay, err := sim.client.AdjustInventory(ctx, adj)
	require.NoError(t, err)
	assert.True(t, replay.AlreadySynced)

	adj.ID = "adj-2"
	adj.Delta = decimal.NewFromInt(-1)
	_, err = sim.client.AdjustInventory(ctx, adj)
	require.NoError(t, err)

	level, err := sim.svc.StockLevel(ctx, "item-lamp", "main")
	require.NoError(t, err)
	assert.True(t, level.Quantity.Equal(decimal.NewFromInt(-3)), "got %s", level.Quantity)
}

func TestUpsertCustomerLastWriteWins(t *testing.T) {
	ctx := context.Background()
	sim := newSim(t, nil)

	_, err := sim.client.UpsertCustomer(ctx, ledger.CustomerRequest{ID: "cus-1", Name: "Ada"})
	require.NoError(t, err)
	resp, err := sim.client.UpsertCustomer(ctx, ledger.CustomerRequest{ID: "cus-1", Name: "Ada Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ldg_cus_cus-1", resp.RemoteID)

	stored, err := sim.repo.FindCustomer(ctx, "cus-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", stored.Name)
	assert.Equal(t, "ada@example.com", stored.Email)
}

func TestRejectsWrongAPIKey(t *testing.T) {
	sim := newSim(t, nil)
	client, err := ledger.NewClient(sim.url, ledger.WithAPIKey("wrong"))
	require.NoError(t, err)

	_, err = client.UpsertCustomer(context.Background(), ledger.CustomerRequest{ID: "cus-1", Name: "Ada"})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
}

func TestClaimsGuardInFlightWrites(t *testing.T) {
	ctx := context.Background()
	claims := newFakeClaims()
	sim := newSim(t, claims)

	_, err := sim.client.UpsertCustomer(ctx, ledger.CustomerRequest{ID: "cus-2", Name: "Grace"})
	require.NoError(t, err)
	assert.Equal(t, 1, claims.released)
	assert.Empty(t, claims.held)

	claims.forceHeld = true
	_, err = sim.client.UpsertCustomer(ctx, ledger.CustomerRequest{ID: "cus-2", Name: "Grace Hopper"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, statusOf(t, err))

	stored, err := sim.repo.FindCustomer(ctx, "cus-2")
	require.NoError(t, err)
	assert.Equal(t, "Grace", stored.Name)
}
