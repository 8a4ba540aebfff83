// Package models holds the persisted POS types: catalogue, sales, the
// stock ledger and operator-facing sync failures.
package models

// All lists every persisted model in migration order.
func All() []any {
	return []any{
		&User{},
		&Product{},
		&SaleSequence{},
		&Sale{},
		&SaleLine{},
		&StockMovement{},
		&SyncFailure{},
	}
}
