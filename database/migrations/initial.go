package migrations

import (
	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/app/offline"
	"github.com/shashiranjanraj/ventas/pkg/migration"
)

func init() {
	migration.Register("20260101000000_create_users", migration.Tables(&models.User{}))
	migration.Register("20260101000001_create_products", migration.Tables(&models.Product{}))
	migration.Register("20260101000002_create_sales",
		migration.Tables(&models.SaleSequence{}, &models.Sale{}, &models.SaleLine{}))
	migration.Register("20260101000003_create_stock_movements", migration.Tables(&models.StockMovement{}))
	migration.Register("20260101000004_create_sync_failures", migration.Tables(&models.SyncFailure{}))
	migration.Register("20260101000005_create_kv_entries", migration.Tables(&offline.KVEntry{}))
}
