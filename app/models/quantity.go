package models

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SaleType says how a product is counted: whole units or a continuous weight.
type SaleType string

const (
	SaleTypeUnit   SaleType = "unit"
	SaleTypeWeight SaleType = "weight"
)

// weightScale is the number of decimal places kept for weighed goods (grams
// on a kilogram scale).
const weightScale = 3

var (
	ErrFractionalUnits = errors.New("models: unit quantities must be whole numbers")
	ErrUnknownSaleType = errors.New("models: unknown sale type")
	ErrSaleTypeMix     = errors.New("models: quantity kinds do not match")
)

func (t SaleType) Valid() bool {
	switch t {
	case SaleTypeUnit, SaleTypeWeight:
		return true
	}
	return false
}

func (t SaleType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSaleType, string(t))
	}
	return string(t), nil
}

func (t *SaleType) Scan(src any) error {
	switch v := src.(type) {
	case string:
		*t = SaleType(v)
	case []byte:
		*t = SaleType(v)
	default:
		return fmt.Errorf("%w: %v", ErrUnknownSaleType, src)
	}
	return nil
}

// Quantity is either Units(n) or Weight(w). The zero value is not valid;
// build one with Units, Weight or NewQuantity.
type Quantity struct {
	kind   SaleType
	amount decimal.Decimal
}

// Units is a whole-unit quantity.
func Units(n int64) Quantity {
	return Quantity{kind: SaleTypeUnit, amount: decimal.NewFromInt(n)}
}

// Weight is a weighed quantity. It is kept at weightScale decimals and
// never rounded to a whole number.
func Weight(w decimal.Decimal) Quantity {
	return Quantity{kind: SaleTypeWeight, amount: w.Round(weightScale)}
}

// NewQuantity builds a quantity of the given kind, rejecting fractional units
// and weights with more precision than the ledger keeps.
func NewQuantity(kind SaleType, amount decimal.Decimal) (Quantity, error) {
	switch kind {
	case SaleTypeUnit:
		if !amount.Equal(amount.Truncate(0)) {
			return Quantity{}, fmt.Errorf("%w: %s", ErrFractionalUnits, amount)
		}
		return Quantity{kind: SaleTypeUnit, amount: amount.Truncate(0)}, nil
	case SaleTypeWeight:
		if !amount.Equal(amount.Round(weightScale)) {
			return Quantity{}, fmt.Errorf("models: weight %s exceeds %d decimals", amount, weightScale)
		}
		return Weight(amount), nil
	default:
		return Quantity{}, fmt.Errorf("%w: %q", ErrUnknownSaleType, string(kind))
	}
}

func (q Quantity) Kind() SaleType          { return q.kind }
func (q Quantity) Decimal() decimal.Decimal { return q.amount }
func (q Quantity) IsZero() bool            { return q.amount.IsZero() }
func (q Quantity) IsPositive() bool        { return q.amount.IsPositive() }
func (q Quantity) IsNegative() bool        { return q.amount.IsNegative() }

// Units returns the whole-unit count. It fails for weighed quantities.
func (q Quantity) Units() (int64, error) {
	if q.kind != SaleTypeUnit {
		return 0, fmt.Errorf("%w: %s is not a unit quantity", ErrSaleTypeMix, q.kind)
	}
	return q.amount.IntPart(), nil
}

func (q Quantity) Neg() Quantity { return Quantity{kind: q.kind, amount: q.amount.Neg()} }
func (q Quantity) Abs() Quantity { return Quantity{kind: q.kind, amount: q.amount.Abs()} }

// Add sums two quantities of the same kind.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	if q.kind != o.kind {
		return Quantity{}, fmt.Errorf("%w: %s + %s", ErrSaleTypeMix, q.kind, o.kind)
	}
	return Quantity{kind: q.kind, amount: q.amount.Add(o.amount)}, nil
}

func (q Quantity) String() string {
	switch q.kind {
	case SaleTypeUnit:
		return q.amount.StringFixed(0)
	case SaleTypeWeight:
		return q.amount.StringFixed(weightScale)
	default:
		return q.amount.String()
	}
}
