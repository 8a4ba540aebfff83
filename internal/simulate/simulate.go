// Package simulate drives many tills against one product at once and checks
// that stock never goes negative and the ledger still balances.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/ventas/app/ledger"
	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/app/offline"
	"github.com/shashiranjanraj/ventas/app/reconcile"
	"github.com/shashiranjanraj/ventas/app/repositories"
	"github.com/shashiranjanraj/ventas/app/services"
	"github.com/shashiranjanraj/ventas/pkg/database"
	"github.com/shashiranjanraj/ventas/pkg/logger"
	"github.com/shashiranjanraj/ventas/pkg/workerpool"
)

const (
	productID = "SIM-001"
	maxCycles = 20
)

type Options struct {
	Tills        int
	SalesPerTill int
	Stock        int64
	Quantity     int64
	// Offline queues every sale on its till first, then drains all tills
	// at once.
	Offline bool
}

func (o Options) withDefaults() Options {
	if o.Tills <= 0 {
		o.Tills = 4
	}
	if o.SalesPerTill <= 0 {
		o.SalesPerTill = 25
	}
	if o.Quantity <= 0 {
		o.Quantity = 1
	}
	if o.Stock < 0 {
		o.Stock = 0
	}
	return o
}

type Result struct {
	Attempts       int64         `json:"attempts"`
	Committed      int64         `json:"committed"`
	Rejected       int64         `json:"rejected"`
	Errors         int64         `json:"errors"`
	Opening        int64         `json:"opening"`
	Remaining      string        `json:"remaining"`
	Oversold       bool          `json:"oversold"`
	LedgerBalanced bool          `json:"ledger_balanced"`
	Duration       time.Duration `json:"duration"`
}

// Run migrates db, stocks one product and sells it from o.Tills tills.
func Run(ctx context.Context, db *gorm.DB, opts services.SaleOptions, o Options) (Result, error) {
	o = o.withDefaults()
	res := Result{Opening: o.Stock}
	start := time.Now()

	if err := db.AutoMigrate(models.All()...); err != nil {
		return res, fmt.Errorf("simulate: migrate: %w", err)
	}
	svc := services.NewSaleService(db, ledger.New(db), opts)
	if err := stock(ctx, db, svc, o.Stock); err != nil {
		return res, err
	}

	var counts counters
	if o.Offline {
		if err := runOffline(ctx, svc, opts, o, &counts); err != nil {
			return res, err
		}
	} else {
		if err := runOnline(ctx, svc, opts, o, &counts); err != nil {
			return res, err
		}
	}
	res.Attempts = counts.attempts.Load()
	res.Committed = counts.committed.Load()
	res.Rejected = counts.rejected.Load()
	res.Errors = counts.errors.Load()

	var p models.Product
	if err := db.WithContext(ctx).Where("id = ?", productID).Take(&p).Error; err != nil {
		return res, fmt.Errorf("simulate: read stock: %w", err)
	}
	res.Remaining = p.OnHand().String()
	sold := decimal.NewFromInt(res.Committed * o.Quantity)
	res.Oversold = p.Quantity.IsNegative() || sold.GreaterThan(decimal.NewFromInt(o.Stock)) ||
		!decimal.NewFromInt(o.Stock).Sub(sold).Equal(p.Quantity)

	reader, err := database.Reader(db)
	if err != nil {
		return res, err
	}
	mismatches, err := repositories.NewReportRepository(reader).LedgerChecks(ctx)
	if err != nil {
		return res, err
	}
	res.LedgerBalanced = len(mismatches) == 0
	res.Duration = time.Since(start)

	logger.Info("simulate: done", "committed", res.Committed, "rejected", res.Rejected,
		"remaining", res.Remaining, "oversold", res.Oversold)
	return res, nil
}

type counters struct {
	attempts, committed, rejected, errors atomic.Int64
}

func (c *counters) record(err error) {
	c.attempts.Add(1)
	switch {
	case err == nil:
		c.committed.Add(1)
	case errors.Is(err, services.ErrInsufficientStock):
		c.rejected.Add(1)
	default:
		c.errors.Add(1)
		logger.Warn("simulate: commit failed", "error", err)
	}
}

func stock(ctx context.Context, db *gorm.DB, svc *services.SaleService, amount int64) error {
	p := models.Product{
		ID:        productID,
		Name:      "Simulated item",
		UnitPrice: decimal.NewFromInt(10),
		SaleType:  models.SaleTypeUnit,
		Quantity:  decimal.Zero,
	}
	if err := db.WithContext(ctx).Create(&p).Error; err != nil {
		return fmt.Errorf("simulate: create product: %w", err)
	}
	if amount == 0 {
		return nil
	}
	_, err := svc.ReceiveStock(ctx, productID, decimal.NewFromInt(amount), "simulate", "opening stock")
	return err
}

func draft(o Options, opts services.SaleOptions, till int) models.SaleDraft {
	method := "cash"
	if len(opts.PaymentMethods) > 0 {
		method = opts.PaymentMethods[0]
	}
	return models.SaleDraft{
		Lines: []models.CartLine{{
			ProductID: productID,
			Quantity:  decimal.NewFromInt(o.Quantity),
			UnitPrice: decimal.NewFromInt(10),
		}},
		OperatorID:    fmt.Sprintf("till-%d", till),
		PaymentMethod: method,
		DraftedAt:     time.Now().UTC(),
	}
}

func runOnline(ctx context.Context, svc *services.SaleService, opts services.SaleOptions, o Options, c *counters) error {
	pool := workerpool.New(ctx, o.Tills)
	defer pool.Shutdown()

	for i := 0; i < o.Tills*o.SalesPerTill; i++ {
		d := draft(o, opts, i%o.Tills)
		err := pool.SubmitWait(ctx, func(ctx context.Context) {
			_, err := svc.CommitSale(ctx, d)
			c.record(err)
		})
		if err != nil {
			return fmt.Errorf("simulate: submit: %w", err)
		}
	}
	pool.Wait()
	return nil
}

// runOffline gives each till its own queue, fills it while the till is
// offline, then brings every till online and drains them concurrently.
func runOffline(ctx context.Context, svc *services.SaleService, opts services.SaleOptions, o Options, c *counters) error {
	type till struct {
		probe  *reconcile.StaticProbe
		syncer *reconcile.Syncer
	}
	tills := make([]till, o.Tills)
	for i := range tills {
		store := offline.NewMemoryStore()
		probe := reconcile.NewStaticProbe(false)
		tills[i] = till{
			probe: probe,
			syncer: reconcile.New(offline.NewQueue(store), offline.NewLocker(store, time.Minute),
				svc, probe, reconcile.EventSink{}, reconcile.Options{Owner: fmt.Sprintf("till-%d", i)}),
		}
		for j := 0; j < o.SalesPerTill; j++ {
			if _, err := tills[i].syncer.Checkout(ctx, draft(o, opts, i)); err != nil {
				return fmt.Errorf("simulate: queue sale: %w", err)
			}
		}
	}

	pool := workerpool.New(ctx, o.Tills)
	defer pool.Shutdown()

	var (
		mu       sync.Mutex
		firstErr error
	)
	for _, t := range tills {
		t := t
		t.probe.Set(true)
		err := pool.SubmitWait(ctx, func(ctx context.Context) {
			for attempt := 0; attempt < maxCycles; attempt++ {
				report, err := t.syncer.RunCycle(ctx)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				for range report.Synced {
					c.record(nil)
				}
				for _, f := range report.Failed {
					if f.Code == services.CodeInsufficientStock {
						c.record(services.ErrInsufficientStock)
					} else {
						c.record(fmt.Errorf("%s: %s", f.Code, f.Reason))
					}
				}
				if !report.Paused || report.Remaining == 0 {
					return
				}
				time.Sleep(10 * time.Millisecond)
			}
		})
		if err != nil {
			return fmt.Errorf("simulate: submit: %w", err)
		}
	}
	pool.Wait()
	return firstErr
}
