package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a catalogue item with its on-hand stock. Quantity holds whole
// units or a weight depending on SaleType; only the stock ledger writes it.
type Product struct {
	ID        string          `gorm:"primaryKey;size:64"                 json:"id"`
	Name      string          `gorm:"size:255;not null;index"            json:"name"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(14,2);not null"        json:"unit_price"`
	SaleType  SaleType        `gorm:"size:16;not null;default:unit"      json:"sale_type"`
	Quantity  decimal.Decimal `gorm:"type:decimal(14,3);not null"        json:"quantity"`
	MinStock  decimal.Decimal `gorm:"type:decimal(14,3);not null"        json:"min_stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// OnHand returns the stock as a typed quantity.
func (p Product) OnHand() Quantity {
	q, err := NewQuantity(p.SaleType, p.Quantity)
	if err != nil {
		// Stored stock always went through NewQuantity; fall back to the
		// raw value rather than hiding it.
		return Quantity{kind: p.SaleType, amount: p.Quantity}
	}
	return q
}

// BelowMinimum reports whether the stock has dropped under the threshold.
func (p Product) BelowMinimum() bool {
	return p.MinStock.IsPositive() && p.Quantity.LessThan(p.MinStock)
}

func (p *Product) BeforeSave(*gorm.DB) error {
	if p.SaleType == "" {
		p.SaleType = SaleTypeUnit
	}
	if !p.SaleType.Valid() {
		return ErrUnknownSaleType
	}
	return nil
}
