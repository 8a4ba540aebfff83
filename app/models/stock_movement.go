package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type MovementKind string

const (
	MovementSale       MovementKind = "sale"
	MovementPurchase   MovementKind = "purchase"
	MovementAdjustment MovementKind = "adjustment"
	MovementReturn     MovementKind = "return"
)

func (k MovementKind) Valid() bool {
	switch k {
	case MovementSale, MovementPurchase, MovementAdjustment, MovementReturn:
		return true
	}
	return false
}

var ErrImmutableMovement = errors.New("models: stock movements are append-only")

// StockMovement is one row of the stock audit trail. Delta is signed;
// Previous and Resulting are the on-hand amounts around the change.
type StockMovement struct {
	ID          uint            `gorm:"primaryKey"                  json:"id"          db:"id"`
	ProductID   string          `gorm:"size:64;not null;index"      json:"product_id"  db:"product_id"`
	Kind        MovementKind    `gorm:"size:16;not null;index"      json:"kind"        db:"kind"`
	SaleType    SaleType        `gorm:"size:16;not null"            json:"sale_type"   db:"sale_type"`
	Delta       decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"delta"       db:"delta"`
	Previous    decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"previous"    db:"previous"`
	Resulting   decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"resulting"   db:"resulting"`
	ReferenceID *string         `gorm:"size:32;index"               json:"reference_id,omitempty" db:"reference_id"`
	Note        string          `gorm:"size:255"                    json:"note,omitempty"         db:"note"`
	OperatorID  string          `gorm:"size:64"                     json:"operator_id,omitempty"  db:"operator_id"`
	CreatedAt   time.Time       `gorm:"index"                       json:"created_at"  db:"created_at"`
}

func (m *StockMovement) BeforeUpdate(*gorm.DB) error { return ErrImmutableMovement }
func (m *StockMovement) BeforeDelete(*gorm.DB) error { return ErrImmutableMovement }
