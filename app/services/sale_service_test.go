package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/ventas/app/ledger"
	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/app/services"
	"github.com/shashiranjanraj/ventas/pkg/event"
	"github.com/shashiranjanraj/ventas/pkg/testkit"
)

func newService(t *testing.T) (*services.SaleService, *gorm.DB) {
	t.Helper()
	db := testkit.NewDB(t)
	svc := services.NewSaleService(db, ledger.New(db), services.SaleOptions{
		TaxRate:        decimal.RequireFromString("0.16"),
		Prefix:         "VEN",
		CodeWidth:      6,
		PaymentMethods: []string{"cash", "card"},
		CommitTimeout:  5 * time.Second,
	})
	t.Cleanup(event.Flush)
	return svc, db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func line(id, qty, price string) models.CartLine {
	return models.CartLine{ProductID: id, Quantity: dec(qty), UnitPrice: dec(price)}
}

func cart(lines ...models.CartLine) models.SaleDraft {
	return models.SaleDraft{Lines: lines, OperatorID: "op-1", PaymentMethod: "cash"}
}

// ─── Scenarios ────────────────────────────────────────────────────────────────

func TestCommitSellsWholeStock(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "P", 5)

	sale, err := svc.CommitSale(context.Background(), cart(line("P", "5", "10")))
	require.NoError(t, err)

	assert.Equal(t, "VEN000001", sale.Code)
	assert.Equal(t, models.SaleCompleted, sale.Status)
	assert.True(t, testkit.OnHand(t, db, "P").IsZero())

	var mvs []models.StockMovement
	require.NoError(t, db.Where("product_id = ?", "P").Find(&mvs).Error)
	require.Len(t, mvs, 1)
	assert.True(t, mvs[0].Delta.Equal(dec("-5")))
	assert.Equal(t, models.MovementSale, mvs[0].Kind)
	assert.Equal(t, sale.Code, *mvs[0].ReferenceID)
}

func TestCommitRejectsOversell(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "P", 5)

	_, err := svc.CommitSale(context.Background(), cart(line("P", "6", "10")))
	require.ErrorIs(t, err, services.ErrInsufficientStock)

	var ise *ledger.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, "P", ise.ProductID)
	assert.Equal(t, "5", ise.Available.String())
	assert.Equal(t, "6", ise.Requested.String())

	assert.True(t, testkit.OnHand(t, db, "P").Equal(dec("5")))
	assert.Zero(t, testkit.Count(t, db, &models.StockMovement{}))
	assert.Zero(t, testkit.Count(t, db, &models.Sale{}))
	assert.Equal(t, services.CodeInsufficientStock, services.Code(err))
	assert.True(t, services.IsPermanent(err))
}

func TestConcurrentCommitsOnlyOneWins(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "P", 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CommitSale(context.Background(), cart(line("P", "3", "10")))
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, services.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.True(t, testkit.OnHand(t, db, "P").Equal(dec("2")))
	assert.Equal(t, int64(1), testkit.Count(t, db, &models.StockMovement{}))
}

func TestRetryWithSameKeyCommitsOnce(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "P", 5)
	draft := cart(line("P", "2", "10")).WithIdempotencyKey("LOCAL-retry")

	first, err := svc.CommitSale(context.Background(), draft)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	// The first response never reached the device; it submits again.
	second, err := svc.CommitSale(context.Background(), draft)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Code, second.Code)
	require.Len(t, second.Lines, 1)

	assert.Equal(t, int64(1), testkit.Count(t, db, &models.Sale{}))
	assert.Equal(t, int64(1), testkit.Count(t, db, &models.StockMovement{}))
	assert.True(t, testkit.OnHand(t, db, "P").Equal(dec("3")))
}

// ─── Properties ───────────────────────────────────────────────────────────────

func TestConcurrentCommitsNeverOversell(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "P", 10)

	const buyers = 25
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CommitSale(context.Background(), cart(line("P", "1", "10")))
			if err == nil {
				mu.Lock()
				won++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, services.ErrInsufficientStock)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, won)
	assert.True(t, testkit.OnHand(t, db, "P").IsZero())
	assert.Equal(t, int64(10), testkit.Count(t, db, &models.Sale{}))
	assert.Equal(t, int64(10), testkit.Count(t, db, &models.StockMovement{}))
}

func TestCommitIsAtomicUnderFaults(t *testing.T) {
	steps := []struct {
		name  string
		op    string
		table string
	}{
		{"lock product", "query", "products"},
		{"create sequence", "create", "sale_sequences"},
		{"bump sequence", "update", "sale_sequences"},
		{"insert sale", "create", "sales"},
		{"insert lines", "create", "sale_lines"},
		{"update stock", "update", "products"},
		{"append movement", "create", "stock_movements"},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			svc, db := newService(t)
			testkit.SeedUnits(t, db, "A", 5)
			testkit.SeedUnits(t, db, "B", 5)

			injected, remove := failOn(t, db, step.op, step.table)
			_, err := svc.CommitSale(context.Background(), cart(line("A", "2", "10"), line("B", "1", "5")))
			remove()

			require.ErrorIs(t, err, injected)
			var pe *services.PersistenceError
			assert.True(t, errors.As(err, &pe))

			assert.Zero(t, testkit.Count(t, db, &models.Sale{}))
			assert.Zero(t, testkit.Count(t, db, &models.SaleLine{}))
			assert.Zero(t, testkit.Count(t, db, &models.StockMovement{}))
			assert.Zero(t, testkit.Count(t, db, &models.SaleSequence{}, "last_value > 0"))
			assert.True(t, testkit.OnHand(t, db, "A").Equal(dec("5")))
			assert.True(t, testkit.OnHand(t, db, "B").Equal(dec("5")))
		})
	}
}

// failOn makes every op on table fail until remove is called.
func failOn(t *testing.T, db *gorm.DB, op, table string) (error, func()) {
	t.Helper()
	injected := errors.New("injected failure on " + op + " " + table)
	name := "test:fail_" + op + "_" + table
	cb := func(d *gorm.DB) {
		if d.Statement.Table == table {
			_ = d.AddError(injected)
		}
	}

	switch op {
	case "query":
		require.NoError(t, db.Callback().Query().Before("gorm:query").Register(name, cb))
		return injected, func() { _ = db.Callback().Query().Remove(name) }
	case "create":
		require.NoError(t, db.Callback().Create().Before("gorm:create").Register(name, cb))
		return injected, func() { _ = db.Callback().Create().Remove(name) }
	default:
		require.NoError(t, db.Callback().Update().Before("gorm:update").Register(name, cb))
		return injected, func() { _ = db.Callback().Update().Remove(name) }
	}
}

func TestCancelledContextWritesNothing(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "P", 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.CommitSale(ctx, cart(line("P", "1", "10")))
	require.Error(t, err)
	assert.True(t, services.IsTransient(err))
	assert.Zero(t, testkit.Count(t, db, &models.Sale{}))
	assert.True(t, testkit.OnHand(t, db, "P").Equal(dec("5")))
}

func TestLedgerMatchesSaleLines(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "A", 10)
	testkit.SeedWeight(t, db, "W", "5.000")

	sale, err := svc.CommitSale(context.Background(), cart(
		line("W", "1.250", "25"),
		line("A", "2", "10"),
		line("A", "3", "10"),
	))
	require.NoError(t, err)

	lineSum := decimal.Zero
	for _, l := range sale.Lines {
		lineSum = lineSum.Add(l.Quantity)
	}

	var mvs []models.StockMovement
	require.NoError(t, db.Where("reference_id = ? AND kind = ?", sale.Code, models.MovementSale).Find(&mvs).Error)
	moved := decimal.Zero
	for _, mv := range mvs {
		moved = moved.Add(mv.Delta.Abs())
	}

	assert.Len(t, mvs, 3)
	assert.True(t, lineSum.Equal(moved), "lines %s, movements %s", lineSum, moved)
	assert.True(t, testkit.OnHand(t, db, "A").Equal(dec("5")))
	assert.True(t, testkit.OnHand(t, db, "W").Equal(dec("3.75")))
}

// ─── Totals and snapshots ─────────────────────────────────────────────────────

func TestTotalsUseCallerPrices(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "A", 10)
	testkit.SeedWeight(t, db, "W", "2.000")

	// A lists at 10.00; the till applied a discount to 8.50.
	sale, err := svc.CommitSale(context.Background(), cart(line("A", "2", "8.50"), line("W", "0.375", "25")))
	require.NoError(t, err)

	assert.True(t, sale.Subtotal.Equal(dec("26.375")), sale.Subtotal.String())
	assert.True(t, sale.Tax.Equal(dec("4.22")), sale.Tax.String())
	assert.True(t, sale.Total.Equal(sale.Subtotal.Add(sale.Tax)))
	assert.True(t, sale.Lines[0].UnitPrice.Equal(dec("8.50")))
	assert.True(t, sale.Lines[0].ListPrice.Equal(dec("10")))

	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", "A").Update("unit_price", dec("12")).Error)

	stored, err := svc.FindSale(context.Background(), sale.Code)
	require.NoError(t, err)
	assert.True(t, stored.Lines[0].UnitPrice.Equal(dec("8.50")))
	assert.True(t, stored.Total.Equal(sale.Total))
}

func TestCodesAreSequential(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "P", 5)

	var codes []string
	for i := 0; i < 3; i++ {
		sale, err := svc.CommitSale(context.Background(), cart(line("P", "1", "10")))
		require.NoError(t, err)
		codes = append(codes, sale.Code)
	}
	_, err := svc.CommitSale(context.Background(), cart(line("P", "9", "10")))
	require.Error(t, err)

	sale, err := svc.CommitSale(context.Background(), cart(line("P", "1", "10")))
	require.NoError(t, err)
	codes = append(codes, sale.Code)

	assert.Equal(t, []string{"VEN000001", "VEN000002", "VEN000003", "VEN000004"}, codes)
}

// ─── Validation ───────────────────────────────────────────────────────────────

func TestCommitValidation(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "P", 5)

	cases := []struct {
		name  string
		draft models.SaleDraft
		want  error
		code  string
	}{
		{"empty cart", cart(), services.ErrEmptyCart, services.CodeEmptyCart},
		{"zero quantity", cart(line("P", "0", "10")), services.ErrInvalidQuantity, services.CodeInvalidQuantity},
		{"negative quantity", cart(line("P", "-1", "10")), services.ErrInvalidQuantity, services.CodeInvalidQuantity},
		{"fractional units", cart(line("P", "1.5", "10")), services.ErrInvalidQuantity, services.CodeInvalidQuantity},
		{"negative price", cart(line("P", "1", "-1")), services.ErrInvalidPrice, services.CodeInvalidPrice},
		{"sub-cent price", cart(line("P", "1", "1.005")), services.ErrInvalidPrice, services.CodeInvalidPrice},
		{"unknown product", cart(line("NOPE", "1", "10")), services.ErrProductNotFound, services.CodeProductNotFound},
		{"no operator", models.SaleDraft{Lines: []models.CartLine{line("P", "1", "10")}, PaymentMethod: "cash"}, services.ErrInvalidDraft, services.CodeInvalidDraft},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CommitSale(context.Background(), tc.draft)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.code, services.Code(err))
		})
	}

	assert.Zero(t, testkit.Count(t, db, &models.Sale{}))
	assert.True(t, testkit.OnHand(t, db, "P").Equal(dec("5")))
}

func TestPaymentMethodIsNotOverridden(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "P", 5)

	d := cart(line("P", "1", "10"))
	d.PaymentMethod = "crypto"
	_, err := svc.CommitSale(context.Background(), d)

	var ve *services.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "payment_method", ve.Field)

	d.PaymentMethod = " Card "
	sale, err := svc.CommitSale(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "card", sale.PaymentMethod)
}

// ─── Cancel and stock moves ───────────────────────────────────────────────────

func TestCancelSaleReturnsStock(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "P", 5)

	sale, err := svc.CommitSale(context.Background(), cart(line("P", "3", "10")))
	require.NoError(t, err)

	cancelled, err := svc.CancelSale(context.Background(), sale.Code, "mgr-1", "customer changed mind")
	require.NoError(t, err)
	assert.Equal(t, models.SaleCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	assert.True(t, testkit.OnHand(t, db, "P").Equal(dec("5")))
	assert.Equal(t, int64(1), testkit.Count(t, db, &models.Sale{}))
	assert.Equal(t, int64(1), testkit.Count(t, db, &models.StockMovement{}, "kind = ?", models.MovementSale))
	assert.Equal(t, int64(1), testkit.Count(t, db, &models.StockMovement{}, "kind = ?", models.MovementReturn))

	_, err = svc.CancelSale(context.Background(), sale.Code, "mgr-1", "again")
	assert.ErrorIs(t, err, services.ErrSaleNotCancellable)

	_, err = svc.CancelSale(context.Background(), "VEN999999", "mgr-1", "")
	assert.ErrorIs(t, err, services.ErrSaleNotFound)
}

func TestReceiveAndAdjustStock(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "P", 5)
	ctx := context.Background()

	mv, err := svc.ReceiveStock(ctx, "P", dec("10"), "mgr-1", "supplier delivery")
	require.NoError(t, err)
	assert.Equal(t, models.MovementPurchase, mv.Kind)
	assert.True(t, testkit.OnHand(t, db, "P").Equal(dec("15")))

	_, err = svc.ReceiveStock(ctx, "P", dec("1.5"), "mgr-1", "")
	assert.ErrorIs(t, err, services.ErrInvalidQuantity)

	_, err = svc.AdjustStock(ctx, "P", dec("-2"), "mgr-1", "")
	assert.ErrorIs(t, err, services.ErrInvalidDraft)

	_, err = svc.AdjustStock(ctx, "P", dec("-20"), "mgr-1", "count")
	assert.ErrorIs(t, err, services.ErrInsufficientStock)

	mv, err = svc.AdjustStock(ctx, "P", dec("-2"), "mgr-1", "broken on shelf")
	require.NoError(t, err)
	assert.True(t, mv.Resulting.Equal(dec("13")))
}

func TestLowStockAlert(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedProduct(t, db, models.Product{
		ID: "P", Name: "Milk", UnitPrice: dec("1.20"), SaleType: models.SaleTypeUnit,
		Quantity: dec("5"), MinStock: dec("3"),
	})

	var alerts []event.StockAlert
	event.Listen(event.StockLow, func(p any) { alerts = append(alerts, p.(event.StockAlert)) })

	_, err := svc.CommitSale(context.Background(), cart(line("P", "1", "1.20")))
	require.NoError(t, err)
	assert.Empty(t, alerts)

	_, err = svc.CommitSale(context.Background(), cart(line("P", "2", "1.20")))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "P", alerts[0].ProductID)
	assert.Equal(t, "2", alerts[0].Quantity)
}

// ─── Codes ────────────────────────────────────────────────────────────────────

func TestFromCodeRestoresErrors(t *testing.T) {
	assert.ErrorIs(t, services.FromCode(services.CodeInsufficientStock, "P short"), services.ErrInsufficientStock)
	assert.ErrorIs(t, services.FromCode(services.CodeProductNotFound, "gone"), services.ErrProductNotFound)
	assert.True(t, services.IsTransient(services.FromCode(services.CodeTransient, "busy")))
	assert.True(t, services.IsPermanent(services.FromCode("something_new", "?")))
	assert.Empty(t, services.Code(nil))
}

func TestSaleCodeBumpIsRelative(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "P", 5)

	first, err := svc.CommitSale(context.Background(), cart(line("P", "1", "10")))
	require.NoError(t, err)
	require.Equal(t, "VEN000001", first.Code)

	// Another till takes the next number between our read and our bump.
	fired := false
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("services_test:sequence", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "sale_sequences" {
			return
		}
		fired = true
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE sale_sequences SET last_value = last_value + 1 WHERE prefix = ?", "VEN").Error)
	}))

	second, err := svc.CommitSale(context.Background(), cart(line("P", "1", "10")))
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, "VEN000003", second.Code)
}

func TestCancelSaleFlipsStatusOnce(t *testing.T) {
	svc, db := newService(t)
	testkit.SeedUnits(t, db, "P", 5)

	sale, err := svc.CommitSale(context.Background(), cart(line("P", "3", "10")))
	require.NoError(t, err)

	// A concurrent cancel wins after our read of the sale row.
	fired := false
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("services_test:cancel", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "sales" {
			return
		}
		fired = true
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE sales SET status = ? WHERE code = ?", models.SaleCancelled, sale.Code).Error)
	}))

	_, err = svc.CancelSale(context.Background(), sale.Code, "mgr-1", "duplicate cancel")
	assert.ErrorIs(t, err, services.ErrSaleNotCancellable)
	assert.True(t, fired)
	assert.True(t, testkit.OnHand(t, db, "P").Equal(dec("2")))
	assert.Zero(t, testkit.Count(t, db, &models.StockMovement{}, "kind = ?", models.MovementReturn))
}
