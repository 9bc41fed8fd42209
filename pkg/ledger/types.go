package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRequest is the body of POST /transactions. ID is the register's
// own transaction identity and doubles as the idempotency key.
type TransactionRequest struct {
	ID            string              `json:"id" validate:"required"`
	RegisterID    string              `json:"registerId" validate:"required"`
	ReceiptNumber string              `json:"receiptNumber" validate:"required"`
	OperatorID    string              `json:"operatorId,omitempty"`
	CustomerID    string              `json:"customerId,omitempty"`
	Currency      string              `json:"currency,omitempty"`
	Lines         []TransactionLine   `json:"lines" validate:"required,min=1,dive"`
	Tenders       []TransactionTender `json:"tenders" validate:"dive"`
	Totals        Totals              `json:"totals"`
	CreatedAt     time.Time           `json:"createdAt" validate:"required"`
}

type TransactionLine struct {
	LineID         string          `json:"lineId" validate:"required"`
	ItemID         string          `json:"itemId" validate:"required"`
	SKU            string          `json:"sku,omitempty"`
	Name           string          `json:"name" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
}

type TransactionTender struct {
	Method    string          `json:"method" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
}

type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discountTotal"`
	TaxTotal      decimal.Decimal `json:"taxTotal"`
	Total         decimal.Decimal `json:"total"`
	Tendered      decimal.Decimal `json:"tendered"`
	ChangeDue     decimal.Decimal `json:"changeDue"`
}

// VoidRequest is the body of POST /transactions/{id}/void.
type VoidRequest struct {
	VoidedAt   time.Time `json:"voidedAt" validate:"required"`
	Reason     string    `json:"reason" validate:"required"`
	OperatorID string    `json:"operatorId,omitempty"`
}

// InventoryAdjustmentRequest is the body of POST /inventory-adjustments.
type InventoryAdjustmentRequest struct {
	ID            string          `json:"id" validate:"required"`
	ItemID        string          `json:"itemId" validate:"required"`
	LocationID    string          `json:"locationId" validate:"required"`
	Delta         decimal.Decimal `json:"delta"`
	Reason        string          `json:"reason" validate:"required"`
	TransactionID string          `json:"transactionId,omitempty"`
}

// CustomerRequest is the body of POST /customers.
type CustomerRequest struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty"`
}

// Response is the ledger's acknowledgement for every write.
type Response struct {
	RemoteID      string `json:"remoteId"`
	AlreadySynced bool   `json:"alreadySynced,omitempty"`
}
