package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one priced cart entry. UnitPrice is whatever the till charged,
// discounts included; the engine snapshots it without re-pricing.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SaleDraft is an immutable checkout attempt. Each attempt is a value; the
// till builds a new draft rather than editing one in flight.
type SaleDraft struct {
	Lines          []CartLine `json:"lines"`
	OperatorID     string     `json:"operator_id"`
	CustomerLabel  string     `json:"customer_label,omitempty"`
	PaymentMethod  string     `json:"payment_method"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	DraftedAt      time.Time  `json:"drafted_at"`
}

// WithIdempotencyKey returns a copy of d carrying key.
func (d SaleDraft) WithIdempotencyKey(key string) SaleDraft {
	d.Lines = append([]CartLine(nil), d.Lines...)
	d.IdempotencyKey = key
	return d
}

// Subtotal is the pre-tax amount the customer saw at the till.
func (d SaleDraft) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range d.Lines {
		sum = sum.Add(l.UnitPrice.Mul(l.Quantity))
	}
	return sum
}
