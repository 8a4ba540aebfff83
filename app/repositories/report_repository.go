package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/shashiranjanraj/ventas/app/models"
)

// ReportRepository runs the read-only audit queries with sqlx over the
// shared pool.
type ReportRepository struct {
	db *sqlx.DB
}

func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const movementColumns = `id, product_id, kind, sale_type, delta, previous, resulting,
	reference_id, note, operator_id, created_at`

// ProductMovements returns a product's movements, newest first.
func (r *ReportRepository) ProductMovements(ctx context.Context, productID string, limit int) ([]models.StockMovement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := r.db.Rebind(`SELECT ` + movementColumns + ` FROM stock_movements
		WHERE product_id = ? ORDER BY id DESC LIMIT ?`)

	out := []models.StockMovement{}
	if err := r.db.SelectContext(ctx, &out, q, productID, limit); err != nil {
		return nil, fmt.Errorf("report: movements for %s: %w", productID, err)
	}
	return out, nil
}

// SaleMovements returns the movements a sale caused, including those of its
// cancellation.
func (r *ReportRepository) SaleMovements(ctx context.Context, code string) ([]models.StockMovement, error) {
	q := r.db.Rebind(`SELECT ` + movementColumns + ` FROM stock_movements
		WHERE reference_id = ? ORDER BY id`)

	out := []models.StockMovement{}
	if err := r.db.SelectContext(ctx, &out, q, code); err != nil {
		return nil, fmt.Errorf("report: movements for sale %s: %w", code, err)
	}
	return out, nil
}

// LedgerCheck compares a product's stock with the sum of its movements.
type LedgerCheck struct {
	ProductID string          `db:"product_id" json:"product_id"`
	OnHand    decimal.Decimal `db:"on_hand"    json:"on_hand"`
	Moved     decimal.Decimal `db:"moved"      json:"moved"`
}

// Balanced compares at stock precision; some drivers sum decimals as floats.
func (c LedgerCheck) Balanced() bool { return c.OnHand.Round(3).Equal(c.Moved.Round(3)) }

// LedgerChecks lists every product whose stock does not equal the sum of
// its movements. An empty result means the ledger balances.
func (r *ReportRepository) LedgerChecks(ctx context.Context) ([]LedgerCheck, error) {
	var rows []LedgerCheck
	err := r.db.SelectContext(ctx, &rows, `
		SELECT p.id AS product_id, p.quantity AS on_hand, COALESCE(SUM(m.delta), 0) AS moved
		FROM products p
		LEFT JOIN stock_movements m ON m.product_id = p.id
		GROUP BY p.id, p.quantity
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("report: ledger check: %w", err)
	}

	out := rows[:0]
	for _, c := range rows {
		if !c.Balanced() {
			out = append(out, c)
		}
	}
	return out, nil
}

// DailySales is the takings for one day.
type DailySales struct {
	Day   string          `db:"day"   json:"day"`
	Sales int64           `db:"sales" json:"sales"`
	Total decimal.Decimal `db:"total" json:"total"`
}

// SalesBetween totals completed sales per day in [from, to).
func (r *ReportRepository) SalesBetween(ctx context.Context, from, to time.Time) ([]DailySales, error) {
	var out []DailySales
	day := dayExpr(r.db.DriverName())
	q := r.db.Rebind(`
		SELECT ` + day + ` AS day, COUNT(*) AS sales, COALESCE(SUM(total), 0) AS total
		FROM sales
		WHERE status = ? AND created_at >= ? AND created_at < ?
		GROUP BY ` + day + ` ORDER BY ` + day)
	if err := r.db.SelectContext(ctx, &out, q, models.SaleCompleted, from, to); err != nil {
		return nil, fmt.Errorf("report: sales between: %w", err)
	}
	return out, nil
}

func dayExpr(driver string) string {
	switch driver {
	case "sqlite3":
		return "strftime('%Y-%m-%d', created_at)"
	case "mysql":
		return "DATE_FORMAT(created_at, '%Y-%m-%d')"
	case "sqlserver":
		return "CONVERT(varchar(10), created_at, 23)"
	default:
		return "to_char(created_at, 'YYYY-MM-DD')"
	}
}
