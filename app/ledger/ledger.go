// Package ledger owns product stock. Every change to Product.Quantity goes
// through Apply, which writes the new amount and exactly one StockMovement
// inside the caller's transaction.
//
//	err := db.Transaction(func(tx *gorm.DB) error {
//	    _, err := l.Apply(tx, ledger.Movement{
//	        ProductID: "P-001",
//	        Delta:     models.Units(-2),
//	        Kind:      models.MovementSale,
//	        Reference: "VEN000042",
//	    })
//	    return err
//	})
package ledger

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/pkg/database"
)

var (
	ErrProductNotFound   = errors.New("ledger: product not found")
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	ErrInvalidMovement   = errors.New("ledger: invalid movement")
)

// InsufficientStockError names the product and the amounts involved.
type InsufficientStockError struct {
	ProductID string
	Available models.Quantity
	Requested models.Quantity
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("ledger: insufficient stock for %s: available %s, requested %s",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// Movement describes one stock change. Delta is signed.
type Movement struct {
	ProductID  string
	Delta      models.Quantity
	Kind       models.MovementKind
	Reference  string
	Note       string
	OperatorID string
}

// Ledger reads and changes stock.
type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Quantity returns a snapshot of the product's on-hand stock. It takes no
// lock; the value may be stale by the time the caller uses it.
func (l *Ledger) Quantity(ctx context.Context, productID string) (models.Quantity, error) {
	var p models.Product
	err := l.db.WithContext(ctx).Select("id", "sale_type", "quantity").
		Where("id = ?", productID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Quantity{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return models.Quantity{}, fmt.Errorf("ledger: read %s: %w", productID, err)
	}
	return p.OnHand(), nil
}

// Lock reads a product and holds its row lock until tx ends.
func (l *Ledger) Lock(tx *gorm.DB, productID string) (*models.Product, error) {
	var p models.Product
	err := database.ForUpdate(tx).Where("id = ?", productID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: lock %s: %w", productID, err)
	}
	return &p, nil
}

// Apply changes one product's stock by m.Delta inside tx and appends the
// matching movement. It fails with *InsufficientStockError when the result
// would be negative; nothing is written in that case.
func (l *Ledger) Apply(tx *gorm.DB, m Movement) (*models.StockMovement, error) {
	if !m.Kind.Valid() {
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidMovement, m.Kind)
	}
	if m.Delta.IsZero() {
		return nil, fmt.Errorf("%w: zero delta", ErrInvalidMovement)
	}

	p, err := l.Lock(tx, m.ProductID)
	if err != nil {
		return nil, err
	}
	if m.Delta.Kind() != p.SaleType {
		return nil, fmt.Errorf("%w: %s is sold by %s, got %s",
			models.ErrSaleTypeMix, p.ID, p.SaleType, m.Delta.Kind())
	}

	current := p.OnHand()
	next, err := current.Add(m.Delta)
	if err != nil {
		return nil, err
	}
	if next.IsNegative() {
		return nil, &InsufficientStockError{ProductID: p.ID, Available: current, Requested: m.Delta.Abs()}
	}

	// The write is relative to the stored value and guarded, so it stays
	// correct on dialects where Lock could not take a row lock.
	q := tx.Model(&models.Product{}).Where("id = ?", p.ID)
	if m.Delta.IsNegative() {
		q = q.Where("quantity >= ?", m.Delta.Abs().Decimal())
	}
	res := q.UpdateColumn("quantity", gorm.Expr("ROUND(quantity + ?, 3)", m.Delta.Decimal()))
	if res.Error != nil {
		return nil, fmt.Errorf("ledger: update %s: %w", p.ID, res.Error)
	}

	stored, err := l.reread(tx, p)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, &InsufficientStockError{ProductID: p.ID, Available: stored, Requested: m.Delta.Abs()}
	}
	if !stored.Decimal().Equal(next.Decimal()) {
		// Another writer moved the row between Lock and the update.
		next = stored
		if current, err = stored.Add(m.Delta.Neg()); err != nil {
			return nil, err
		}
	}

	mv := &models.StockMovement{
		ProductID:  p.ID,
		Kind:       m.Kind,
		SaleType:   p.SaleType,
		Delta:      m.Delta.Decimal(),
		Previous:   current.Decimal(),
		Resulting:  next.Decimal(),
		Note:       m.Note,
		OperatorID: m.OperatorID,
	}
	if m.Reference != "" {
		ref := m.Reference
		mv.ReferenceID = &ref
	}
	if err := tx.Create(mv).Error; err != nil {
		return nil, fmt.Errorf("ledger: append movement for %s: %w", p.ID, err)
	}

	return mv, nil
}

// reread returns the stock as stored now, inside tx.
func (l *Ledger) reread(tx *gorm.DB, p *models.Product) (models.Quantity, error) {
	var row models.Product
	err := tx.Select("id", "sale_type", "quantity").Where("id = ?", p.ID).Take(&row).Error
	if err != nil {
		return models.Quantity{}, fmt.Errorf("ledger: read back %s: %w", p.ID, err)
	}
	row.SaleType = p.SaleType
	return row.OnHand(), nil
}

// ApplyNow runs Apply in its own transaction.
func (l *Ledger) ApplyNow(ctx context.Context, m Movement) (*models.StockMovement, error) {
	var mv *models.StockMovement
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		mv, err = l.Apply(tx, m)
		return err
	})
	return mv, err
}
