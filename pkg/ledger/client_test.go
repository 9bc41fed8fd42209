package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func sampleTransaction() TransactionRequest {
	return TransactionRequest{
		ID:            "9b2f0a64-3c1e-4a63-8d7e-1f7a2d5c9e01",
		RegisterID:    "reg-01",
		ReceiptNumber: "R-000001",
		Lines: []TransactionLine{{
			LineID:    "l1",
			ItemID:    "item-1",
			Name:      "Coffee",
			Quantity:  decimal.NewFromInt(2),
			UnitPrice: decimal.RequireFromString("10.00"),
			Tax:       decimal.RequireFromString("1.65"),
			Total:     decimal.RequireFromString("21.65"),
		}},
		Tenders: []TransactionTender{{Method: "cash", Amount: decimal.RequireFromString("25.00")}},
		Totals: Totals{
			Subtotal: decimal.RequireFromString("20.00"),
			TaxTotal: decimal.RequireFromString("1.65"),
			Total:    decimal.RequireFromString("21.65"),
		},
		CreatedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreateTransactionRequest(t *testing.T) {
	var captured *http.Request
	var payload map[string]any
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		return jsonResponse(http.StatusCreated, `{"remoteId":"L-1"}`), nil
	})

	client, err := NewClient("http://ledger.test/api/", WithHTTPClient(&http.Client{Transport: rt}), WithAPIKey("secret"), WithRegisterID("reg-01"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	resp, err := client.CreateTransaction(context.Background(), sampleTransaction())
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if resp.RemoteID != "L-1" || resp.AlreadySynced {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got := captured.URL.String(); got != "http://ledger.test/api/transactions" {
		t.Fatalf("unexpected URL %q", got)
	}
	if captured.Header.Get("Authorization") != "Bearer secret" {
		t.Fatalf("missing bearer token")
	}
	if captured.Header.Get(headerIdempotencyKey) != sampleTransaction().ID {
		t.Fatalf("unexpected idempotency key %q", captured.Header.Get(headerIdempotencyKey))
	}
	if captured.Header.Get(headerRegisterID) != "reg-01" {
		t.Fatalf("missing register header")
	}
	totals := payload["totals"].(map[string]any)
	if totals["total"] != "21.65" {
		t.Fatalf("decimals must be sent as strings, got %v", totals["total"])
	}
}

func TestCreateTransactionAlreadySynced(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"remoteId":"L-1","alreadySynced":true}`), nil
	})
	client, _ := NewClient("http://ledger.test", WithHTTPClient(&http.Client{Transport: rt}))

	resp, err := client.CreateTransaction(context.Background(), sampleTransaction())
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if !resp.AlreadySynced || resp.RemoteID != "L-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestVoidTransactionPath(t *testing.T) {
	var capturedURL, capturedKey string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedKey = req.Header.Get(headerIdempotencyKey)
		return jsonResponse(http.StatusOK, `{"remoteId":"L-1"}`), nil
	})
	client, _ := NewClient("http://ledger.test", WithHTTPClient(&http.Client{Transport: rt}))

	_, err := client.VoidTransaction(context.Background(), "tx-1", VoidRequest{VoidedAt: time.Now(), Reason: "customer return"})
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if capturedURL != "http://ledger.test/transactions/tx-1/void" {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedKey != "void:tx-1" {
		t.Fatalf("unexpected idempotency key %q", capturedKey)
	}
}

func TestStatusErrorIsNotTransport(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnprocessableEntity, `{"error":"bad lines"}`), nil
	})
	client, _ := NewClient("http://ledger.test", WithHTTPClient(&http.Client{Transport: rt}))

	_, err := client.AdjustInventory(context.Background(), InventoryAdjustmentRequest{ID: "adj-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected status error, got %v", err)
	}
	if errors.Is(err, ErrTransport) {
		t.Fatalf("status errors must not look like transport failures")
	}
}

func TestTransportErrorIsMarked(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	client, _ := NewClient("http://ledger.test", WithHTTPClient(&http.Client{Transport: rt}))

	_, err := client.UpsertCustomer(context.Background(), CustomerRequest{ID: "c-1", Name: "Lin"})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if err := client.Ping(context.Background()); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error from ping, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

func TestWritesRequireIdentity(t *testing.T) {
	client, _ := NewClient("http://ledger.test")
	if _, err := client.CreateTransaction(context.Background(), TransactionRequest{}); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := client.VoidTransaction(context.Background(), "", VoidRequest{}); err == nil {
		t.Fatal("expected validation error")
	}
}
