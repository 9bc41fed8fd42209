package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-engine/pkg/enums"
)

// Transaction is the immutable record of a completed sale. Only the void fields and
// the sync bookkeeping (RemoteID, SyncedAt) change after insert.
type Transaction struct {
	ID            uuid.UUID               `gorm:"column:id;type:text;primaryKey" json:"id"`
	ReceiptNumber string                  `gorm:"column:receipt_number;not null" json:"receiptNumber"`
	RegisterID    string                  `gorm:"column:register_id;not null" json:"registerId"`
	OperatorID    uuid.UUID               `gorm:"column:operator_id;type:text;not null" json:"operatorId"`
	ShiftID       *uuid.UUID              `gorm:"column:shift_id;type:text" json:"shiftId,omitempty"`
	CustomerID    *uuid.UUID              `gorm:"column:customer_id;type:text" json:"customerId,omitempty"`
	Status        enums.TransactionStatus `gorm:"column:status;not null;default:completed" json:"status"`
	Currency      enums.Currency          `gorm:"column:currency;not null;default:USD" json:"currency"`
	Lines         []TransactionLine       `gorm:"column:lines;type:text;serializer:json;not null" json:"lines"`
	Tenders       []TransactionTender     `gorm:"column:tenders;type:text;serializer:json;not null" json:"tenders"`
	Subtotal      decimal.Decimal         `gorm:"column:subtotal;type:text;not null" json:"subtotal"`
	DiscountTotal decimal.Decimal         `gorm:"column:discount_total;type:text;not null" json:"discountTotal"`
	TaxTotal      decimal.Decimal         `gorm:"column:tax_total;type:text;not null" json:"taxTotal"`
	Total         decimal.Decimal         `gorm:"column:total;type:text;not null" json:"total"`
	Tendered      decimal.Decimal         `gorm:"column:tendered;type:text;not null" json:"tendered"`
	ChangeDue     decimal.Decimal         `gorm:"column:change_due;type:text;not null" json:"changeDue"`
	// CashAmount is the cash kept in the drawer: cash tendered minus change handed back.
	CashAmount decimal.Decimal `gorm:"column:cash_amount;type:text;not null" json:"cashAmount"`
	RemoteID   *string         `gorm:"column:remote_id" json:"remoteId,omitempty"`
	SyncedAt   *time.Time      `gorm:"column:synced_at" json:"syncedAt,omitempty"`
	VoidReason *string         `gorm:"column:void_reason" json:"voidReason,omitempty"`
	VoidedBy   *uuid.UUID      `gorm:"column:voided_by;type:text" json:"voidedBy,omitempty"`
	VoidedAt   *time.Time      `gorm:"column:voided_at" json:"voidedAt,omitempty"`
	CreatedAt  time.Time       `gorm:"column:created_at;not null" json:"createdAt"`
}

// TransactionLine copies everything the receipt and the ledger need from a cart line.
type TransactionLine struct {
	LineID         uuid.UUID       `json:"lineId"`
	ItemID         string          `json:"itemId"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	TaxRate        decimal.Decimal `json:"taxRate"`
	Gross          decimal.Decimal `json:"gross"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
}

// TransactionTender is a settled payment leg.
type TransactionTender struct {
	ID        uuid.UUID          `json:"id"`
	Method    enums.TenderMethod `json:"method"`
	Amount    decimal.Decimal    `json:"amount"`
	Reference string             `json:"reference,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// IsVoided reports whether the sale has been reversed.
func (t *Transaction) IsVoided() bool {
	return t.Status == enums.TransactionVoided
}
