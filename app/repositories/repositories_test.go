package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/ventas/app/ledger"
	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/app/repositories"
	"github.com/shashiranjanraj/ventas/app/services"
	"github.com/shashiranjanraj/ventas/pkg/database"
	"github.com/shashiranjanraj/ventas/pkg/event"
	"github.com/shashiranjanraj/ventas/pkg/testkit"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestProductListFiltersAndPaginates(t *testing.T) {
	db := testkit.NewDB(t)
	testkit.SeedUnits(t, db, "A", 1)
	testkit.SeedUnits(t, db, "B", 5)
	testkit.SeedProduct(t, db, models.Product{ID: "C", Name: "Cheese", UnitPrice: d("4"), Quantity: d("1"), MinStock: d("2")})

	repo := repositories.NewProductRepository(db)
	ctx := context.Background()

	all, page, err := repo.List(ctx, repositories.ProductFilter{PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.LastPage)

	low, _, err := repo.List(ctx, repositories.ProductFilter{LowStock: true})
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "C", low[0].ID)

	found, _, err := repo.List(ctx, repositories.ProductFilter{Search: "chee"})
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestProductCreateStartsEmptyAndUpdateLeavesStock(t *testing.T) {
	db := testkit.NewDB(t)
	repo := repositories.NewProductRepository(db)
	ctx := context.Background()

	p := &models.Product{ID: "N", Name: "New", UnitPrice: d("3"), Quantity: d("50")}
	require.NoError(t, repo.Create(ctx, p))
	assert.True(t, testkit.OnHand(t, db, "N").IsZero(), "stock only arrives through the ledger")

	name := "Renamed"
	price := d("3.50")
	got, err := repo.Update(ctx, "N", repositories.ProductChanges{Name: &name, UnitPrice: &price})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.True(t, got.UnitPrice.Equal(price))

	_, err = repo.Update(ctx, "missing", repositories.ProductChanges{Name: &name})
	assert.ErrorIs(t, err, repositories.ErrProductNotFound)

	_, err = repo.Find(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrProductNotFound)
}

func TestSyncFailureRecordIsIdempotent(t *testing.T) {
	db := testkit.NewDB(t)
	repo := repositories.NewSyncFailureRepository(db)
	ctx := context.Background()

	rep := models.SyncFailureReport{DeviceID: "till-1", LocalID: "LOCAL-1", Code: "insufficient_stock", Reason: "only 1 left"}
	first, err := repo.Record(ctx, rep)
	require.NoError(t, err)

	rep.Reason = "only 0 left"
	second, err := repo.Record(ctx, rep)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "only 0 left", second.Reason)

	open, page, err := repo.List(ctx, true, 1, 20)
	require.NoError(t, err)
	assert.Len(t, open, 1)
	assert.Equal(t, int64(1), page.Total)

	acked, err := repo.Acknowledge(ctx, first.ID, "luis")
	require.NoError(t, err)
	require.NotNil(t, acked.AcknowledgedAt)
	assert.Equal(t, "luis", acked.AcknowledgedBy)

	again, err := repo.Acknowledge(ctx, first.ID, "ana")
	require.NoError(t, err)
	assert.Equal(t, "luis", again.AcknowledgedBy)

	open, _, err = repo.List(ctx, true, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = repo.Acknowledge(ctx, 999, "luis")
	assert.ErrorIs(t, err, repositories.ErrSyncFailureNotFound)
}

func TestReportMovementsAndLedgerBalance(t *testing.T) {
	db := testkit.NewDB(t)
	t.Cleanup(event.Flush)
	testkit.SeedWeight(t, db, "W", "0")
	svc := services.NewSaleService(db, ledger.New(db), services.SaleOptions{
		TaxRate:        d("0.16"),
		PaymentMethods: []string{"cash"},
		CommitTimeout:  5 * time.Second,
	})
	ctx := context.Background()

	_, err := svc.ReceiveStock(ctx, "W", d("2.5"), "luis", "delivery")
	require.NoError(t, err)
	sale, err := svc.CommitSale(ctx, models.SaleDraft{
		Lines:         []models.CartLine{{ProductID: "W", Quantity: d("0.375"), UnitPrice: d("25")}},
		OperatorID:    "ana",
		PaymentMethod: "cash",
	})
	require.NoError(t, err)

	rx, err := database.Reader(db)
	require.NoError(t, err)
	reports := repositories.NewReportRepository(rx)

	mvs, err := reports.ProductMovements(ctx, "W", 10)
	require.NoError(t, err)
	require.Len(t, mvs, 2)
	assert.Equal(t, models.MovementSale, mvs[0].Kind)
	assert.True(t, mvs[0].Resulting.Equal(d("2.125")))

	bySale, err := reports.SaleMovements(ctx, sale.Code)
	require.NoError(t, err)
	require.Len(t, bySale, 1)
	assert.True(t, bySale[0].Delta.Equal(d("-0.375")))

	unbalanced, err := reports.LedgerChecks(ctx)
	require.NoError(t, err)
	assert.Empty(t, unbalanced)
}
