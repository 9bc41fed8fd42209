package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogItem is the register's local copy of a sellable item, looked up by barcode or SKU.
type CatalogItem struct {
	ID             uuid.UUID       `gorm:"column:id;type:text;primaryKey" json:"id"`
	SKU            string          `gorm:"column:sku;not null" json:"sku"`
	Barcode        *string         `gorm:"column:barcode" json:"barcode,omitempty"`
	Name           string          `gorm:"column:name;not null" json:"name"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:text;not null" json:"unitPrice"`
	TaxRate        decimal.Decimal `gorm:"column:tax_rate;type:text;not null" json:"taxRate"`
	WeightRequired bool            `gorm:"column:weight_required;not null;default:false" json:"weightRequired"`
	Active         bool            `gorm:"column:active;not null" json:"active"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;not null" json:"updatedAt"`
}
