package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SaleCompleted SaleStatus = "completed"
	SaleCancelled SaleStatus = "cancelled"
)

// Sale is one committed checkout. Code is the server identity
// (<prefix><sequence>); IdempotencyKey is the caller's retry key, which for
// offline drafts is their local ID.
type Sale struct {
	ID             uint            `gorm:"primaryKey"                             json:"-"`
	Code           string          `gorm:"size:32;uniqueIndex;not null"           json:"code"`
	IdempotencyKey *string         `gorm:"size:128;uniqueIndex"                   json:"idempotency_key,omitempty"`
	OperatorID     string          `gorm:"size:64;not null;index"                 json:"operator_id"`
	CustomerLabel  string          `gorm:"size:255"                               json:"customer_label,omitempty"`
	PaymentMethod  string          `gorm:"size:32;not null"                       json:"payment_method"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(16,5);not null"            json:"subtotal"`
	TaxRate        decimal.Decimal `gorm:"type:decimal(6,4);not null"             json:"tax_rate"`
	Tax            decimal.Decimal `gorm:"type:decimal(16,2);not null"            json:"tax"`
	Total          decimal.Decimal `gorm:"type:decimal(16,5);not null"            json:"total"`
	Status         SaleStatus      `gorm:"size:16;not null;default:completed;index" json:"status"`
	DraftedAt      *time.Time      `json:"drafted_at,omitempty"`
	CreatedAt      time.Time       `gorm:"index"                                  json:"created_at"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason   string          `gorm:"size:255"                               json:"cancel_reason,omitempty"`
	Lines          []SaleLine      `gorm:"foreignKey:SaleID"                      json:"lines"`

	// Replayed marks a response for a sale that was already committed
	// under the same idempotency key.
	Replayed bool `gorm:"-" json:"replayed,omitempty"`
}

// SaleLine snapshots price and quantity at commit time. ListPrice is the
// catalogue price at that moment, kept next to the charged UnitPrice.
type SaleLine struct {
	ID        uint            `gorm:"primaryKey"                  json:"-"`
	SaleID    uint            `gorm:"not null;index"              json:"-"`
	ProductID string          `gorm:"size:64;not null;index"      json:"product_id"`
	SaleType  SaleType        `gorm:"size:16;not null"            json:"sale_type"`
	Quantity  decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"unit_price"`
	ListPrice decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"list_price"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(16,5);not null" json:"subtotal"`
}

// Qty returns the line quantity as a typed quantity.
func (l SaleLine) Qty() (Quantity, error) {
	return NewQuantity(l.SaleType, l.Quantity)
}

// SaleSequence hands out sale codes. The row for a prefix is locked for the
// duration of the commit transaction, so codes are gap-free per prefix.
type SaleSequence struct {
	Prefix    string `gorm:"primaryKey;size:16"`
	LastValue int64  `gorm:"not null;default:0"`
}
