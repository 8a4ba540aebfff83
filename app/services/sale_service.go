package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shashiranjanraj/ventas/app/ledger"
	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/config"
	"github.com/shashiranjanraj/ventas/pkg/database"
	"github.com/shashiranjanraj/ventas/pkg/event"
	"github.com/shashiranjanraj/ventas/pkg/logger"
	"github.com/shashiranjanraj/ventas/pkg/metrics"
)

// SaleOptions configures the commit engine.
type SaleOptions struct {
	TaxRate        decimal.Decimal
	Prefix         string
	CodeWidth      int
	PaymentMethods []string
	CommitTimeout  time.Duration
	LockTimeout    time.Duration
}

// SaleOptionsFromConfig reads the options from config.
func SaleOptionsFromConfig() SaleOptions {
	return SaleOptions{
		TaxRate:        config.TaxRate(),
		Prefix:         config.SalePrefix(),
		CodeWidth:      config.SaleCodeWidth(),
		PaymentMethods: config.PaymentMethods(),
		CommitTimeout:  config.CommitTimeout(),
		LockTimeout:    config.LockTimeout(),
	}
}

// SaleService is the only writer of stock. Sales, cancellations, deliveries
// and manual adjustments all go through it and from there to the ledger.
type SaleService struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	opts    SaleOptions
	methods map[string]bool
}

func NewSaleService(db *gorm.DB, l *ledger.Ledger, opts SaleOptions) *SaleService {
	if opts.Prefix == "" {
		opts.Prefix = "VEN"
	}
	if opts.CodeWidth <= 0 {
		opts.CodeWidth = 6
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = 10 * time.Second
	}
	if len(opts.PaymentMethods) == 0 {
		opts.PaymentMethods = []string{"cash"}
	}

	methods := make(map[string]bool, len(opts.PaymentMethods))
	for _, m := range opts.PaymentMethods {
		methods[strings.ToLower(strings.TrimSpace(m))] = true
	}

	return &SaleService{db: db, ledger: l, opts: opts, methods: methods}
}

// ─── Commit ───────────────────────────────────────────────────────────────────

// CommitSale turns a draft into a persisted sale. Either the sale, its lines
// and one movement per line are all written, or nothing is.
//
// A draft whose idempotency key already belongs to a sale returns that sale
// with Replayed set and touches no stock.
func (s *SaleService) CommitSale(ctx context.Context, draft models.SaleDraft) (sale *models.Sale, err error) {
	start := time.Now()
	defer func() { s.observeCommit(ctx, draft, sale, err, start) }()

	method, err := s.validate(draft)
	if err != nil {
		return nil, err
	}

	if draft.IdempotencyKey != "" {
		existing, ferr := s.findByKey(ctx, draft.IdempotencyKey)
		if ferr != nil || existing != nil {
			return existing, ferr
		}
	}

	tctx, cancel := context.WithTimeout(ctx, s.opts.CommitTimeout)
	defer cancel()

	var touched []*models.Product
	err = s.db.WithContext(tctx).Transaction(func(tx *gorm.DB) error {
		if err := s.setLockTimeout(tx); err != nil {
			return err
		}
		var txErr error
		sale, touched, txErr = s.commit(tx, draft, method)
		return txErr
	})
	if err != nil {
		sale = nil
		if draft.IdempotencyKey != "" && database.IsUniqueViolation(err) {
			// A concurrent submission with the same key won the race.
			if existing, ferr := s.findByKey(ctx, draft.IdempotencyKey); ferr == nil && existing != nil {
				return existing, nil
			}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &PersistenceError{Op: "commit", Err: err, Transient: true}
		}
		return nil, classify("commit", err)
	}

	s.afterStockChange(touched)
	event.Fire(event.SaleCommitted, sale)
	return sale, nil
}

func (s *SaleService) commit(tx *gorm.DB, draft models.SaleDraft, method string) (*models.Sale, []*models.Product, error) {
	order := lockOrder(draft.Lines)

	// Lock every product up front, in id order, so two carts sharing
	// products cannot deadlock each other.
	products := make(map[string]*models.Product, len(order))
	touched := make([]*models.Product, 0, len(order))
	for _, i := range order {
		id := draft.Lines[i].ProductID
		if _, ok := products[id]; ok {
			continue
		}
		p, err := s.ledger.Lock(tx, id)
		if err != nil {
			return nil, nil, err
		}
		products[id] = p
		touched = append(touched, p)
	}

	sale := &models.Sale{
		OperatorID:    draft.OperatorID,
		CustomerLabel: draft.CustomerLabel,
		PaymentMethod: method,
		TaxRate:       s.opts.TaxRate,
		Status:        models.SaleCompleted,
	}
	if draft.IdempotencyKey != "" {
		key := draft.IdempotencyKey
		sale.IdempotencyKey = &key
	}
	if !draft.DraftedAt.IsZero() {
		at := draft.DraftedAt.UTC()
		sale.DraftedAt = &at
	}

	qtys := make([]models.Quantity, len(draft.Lines))
	subtotal := decimal.Zero
	for i, line := range draft.Lines {
		p := products[line.ProductID]
		q, err := models.NewQuantity(p.SaleType, line.Quantity)
		if err != nil {
			return nil, nil, invalid(fmt.Sprintf("lines[%d].quantity", i), ErrInvalidQuantity, "%v", err)
		}
		qtys[i] = q

		lineTotal := line.UnitPrice.Mul(q.Decimal())
		subtotal = subtotal.Add(lineTotal)
		sale.Lines = append(sale.Lines, models.SaleLine{
			ProductID: p.ID,
			SaleType:  p.SaleType,
			Quantity:  q.Decimal(),
			UnitPrice: line.UnitPrice,
			ListPrice: p.UnitPrice,
			Subtotal:  lineTotal,
		})
	}
	sale.Subtotal = subtotal
	sale.Tax = subtotal.Mul(s.opts.TaxRate).Round(2)
	sale.Total = subtotal.Add(sale.Tax)

	code, err := s.nextCode(tx)
	if err != nil {
		return nil, nil, err
	}
	sale.Code = code

	if err := tx.Create(sale).Error; err != nil {
		return nil, nil, fmt.Errorf("insert sale %s: %w", code, err)
	}

	for _, i := range order {
		mv, err := s.ledger.Apply(tx, ledger.Movement{
			ProductID:  draft.Lines[i].ProductID,
			Delta:      qtys[i].Neg(),
			Kind:       models.MovementSale,
			Reference:  code,
			Note:       "sale " + code,
			OperatorID: draft.OperatorID,
		})
		if err != nil {
			return nil, nil, err
		}
		products[mv.ProductID].Quantity = mv.Resulting
	}

	return sale, touched, nil
}

// lockOrder returns line indexes sorted by product id, stable for repeats.
func lockOrder(lines []models.CartLine) []int {
	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return lines[order[a]].ProductID < lines[order[b]].ProductID
	})
	return order
}

func (s *SaleService) validate(d models.SaleDraft) (string, error) {
	if len(d.Lines) == 0 {
		return "", ErrEmptyCart
	}
	if strings.TrimSpace(d.OperatorID) == "" {
		return "", invalid("operator_id", ErrInvalidDraft, "operator is required")
	}
	if len(d.IdempotencyKey) > 128 {
		return "", invalid("idempotency_key", ErrInvalidDraft, "longer than 128 characters")
	}

	method := strings.ToLower(strings.TrimSpace(d.PaymentMethod))
	if !s.methods[method] {
		return "", invalid("payment_method", ErrInvalidPaymentMethod,
			"%q is not one of %s", d.PaymentMethod, strings.Join(s.opts.PaymentMethods, ", "))
	}

	for i, l := range d.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		switch {
		case strings.TrimSpace(l.ProductID) == "":
			return "", invalid(field+".product_id", ErrInvalidDraft, "product is required")
		case !l.Quantity.IsPositive():
			return "", invalid(field+".quantity", ErrInvalidQuantity, "%s is not greater than zero", l.Quantity)
		case l.UnitPrice.IsNegative():
			return "", invalid(field+".unit_price", ErrInvalidPrice, "%s is negative", l.UnitPrice)
		case !l.UnitPrice.Equal(l.UnitPrice.Round(2)):
			return "", invalid(field+".unit_price", ErrInvalidPrice, "%s has more than two decimals", l.UnitPrice)
		}
	}
	return method, nil
}

// nextCode bumps the prefix's sequence row in place and reads the value
// back. The update holds the row until commit and rolls back with the
// sale, so codes are unique and gap-free on every dialect.
func (s *SaleService) nextCode(tx *gorm.DB) (string, error) {
	seq := models.SaleSequence{Prefix: s.opts.Prefix}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
		return "", fmt.Errorf("init sequence %s: %w", s.opts.Prefix, err)
	}

	err := tx.Model(&models.SaleSequence{}).
		Where("prefix = ?", s.opts.Prefix).
		UpdateColumn("last_value", gorm.Expr("last_value + 1")).Error
	if err != nil {
		return "", fmt.Errorf("bump sequence %s: %w", s.opts.Prefix, err)
	}
	if err := tx.Where("prefix = ?", s.opts.Prefix).Take(&seq).Error; err != nil {
		return "", fmt.Errorf("read sequence %s: %w", s.opts.Prefix, err)
	}

	return fmt.Sprintf("%s%0*d", s.opts.Prefix, s.opts.CodeWidth, seq.LastValue), nil
}

// setLockTimeout bounds row-lock waits so a contended product surfaces as a
// transient error instead of a hung checkout. SQLite gets its busy timeout
// from the DSN.
func (s *SaleService) setLockTimeout(tx *gorm.DB) error {
	if s.opts.LockTimeout <= 0 {
		return nil
	}
	ms := s.opts.LockTimeout.Milliseconds()

	switch tx.Dialector.Name() {
	case "postgres":
		return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = %d", ms)).Error
	case "mysql":
		secs := int(math.Ceil(s.opts.LockTimeout.Seconds()))
		return tx.Exec("SET SESSION innodb_lock_wait_timeout = ?", secs).Error
	case "sqlserver":
		return tx.Exec(fmt.Sprintf("SET LOCK_TIMEOUT %d", ms)).Error
	}
	return nil
}

func (s *SaleService) observeCommit(ctx context.Context, d models.SaleDraft, sale *models.Sale, err error, start time.Time) {
	metrics.ObserveDBQuery("commit_sale", start)
	log := logger.WithCtx(ctx)

	switch {
	case err != nil:
		metrics.SalesRejected.WithLabelValues(Code(err)).Inc()
		log.Warn("sale: commit failed",
			"operator", d.OperatorID, "local_id", d.IdempotencyKey, "code", Code(err), "error", err)
	case sale.Replayed:
		metrics.SalesReplayed.Inc()
		log.Info("sale: replayed", "sale_code", sale.Code, "local_id", d.IdempotencyKey)
	default:
		metrics.SalesCommitted.Inc()
		metrics.StockMovements.WithLabelValues(string(models.MovementSale)).Add(float64(len(sale.Lines)))
		log.Info("sale: committed",
			"sale_code", sale.Code, "total", sale.Total.StringFixed(2), "lines", len(sale.Lines))
	}
}

// ─── Cancel ───────────────────────────────────────────────────────────────────

// CancelSale returns a completed sale's stock with `return` movements and
// flags it cancelled. The sale and its original movements stay.
func (s *SaleService) CancelSale(ctx context.Context, code, operatorID, reason string) (*models.Sale, error) {
	start := time.Now()
	defer metrics.ObserveDBQuery("cancel_sale", start)

	if strings.TrimSpace(operatorID) == "" {
		return nil, invalid("operator_id", ErrInvalidDraft, "operator is required")
	}

	tctx, cancel := context.WithTimeout(ctx, s.opts.CommitTimeout)
	defer cancel()

	var (
		sale    models.Sale
		touched []*models.Product
	)
	err := s.db.WithContext(tctx).Transaction(func(tx *gorm.DB) error {
		if err := s.setLockTimeout(tx); err != nil {
			return err
		}

		err := database.ForUpdate(tx).Where("code = ?", code).Take(&sale).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrSaleNotFound, code)
		}
		if err != nil {
			return err
		}
		if sale.Status != models.SaleCompleted {
			return fmt.Errorf("%w: %s is %s", ErrSaleNotCancellable, code, sale.Status)
		}
		now := time.Now().UTC()
		res := tx.Model(&models.Sale{}).
			Where("id = ? AND status = ?", sale.ID, models.SaleCompleted).
			Updates(map[string]any{
				"status":        models.SaleCancelled,
				"cancelled_at":  now,
				"cancel_reason": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s was cancelled concurrently", ErrSaleNotCancellable, code)
		}
		sale.Status = models.SaleCancelled
		sale.CancelledAt = &now
		sale.CancelReason = reason

		if err := tx.Where("sale_id = ?", sale.ID).Order("product_id, id").Find(&sale.Lines).Error; err != nil {
			return err
		}

		for _, line := range sale.Lines {
			q, err := line.Qty()
			if err != nil {
				return err
			}
			if _, err := s.ledger.Apply(tx, ledger.Movement{
				ProductID:  line.ProductID,
				Delta:      q,
				Kind:       models.MovementReturn,
				Reference:  code,
				Note:       strings.TrimSpace("cancel " + code + " " + reason),
				OperatorID: operatorID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.WithCtx(ctx).Warn("sale: cancel failed", "sale_code", code, "error", err)
		return nil, classify("cancel", err)
	}

	for _, line := range sale.Lines {
		touched = append(touched, &models.Product{ID: line.ProductID})
	}
	metrics.StockMovements.WithLabelValues(string(models.MovementReturn)).Add(float64(len(sale.Lines)))
	s.afterStockChange(touched)
	event.Fire(event.SaleCancelled, &sale)
	logger.WithCtx(ctx).Info("sale: cancelled", "sale_code", code, "operator", operatorID)
	return &sale, nil
}

// ─── Stock intake and corrections ─────────────────────────────────────────────

// ReceiveStock books a delivery. amount must be positive.
func (s *SaleService) ReceiveStock(ctx context.Context, productID string, amount decimal.Decimal, operatorID, note string) (*models.StockMovement, error) {
	if !amount.IsPositive() {
		return nil, invalid("quantity", ErrInvalidQuantity, "%s is not greater than zero", amount)
	}
	return s.move(ctx, productID, amount, models.MovementPurchase, operatorID, note)
}

// AdjustStock applies a signed correction after a count. It cannot take
// stock below zero.
func (s *SaleService) AdjustStock(ctx context.Context, productID string, delta decimal.Decimal, operatorID, note string) (*models.StockMovement, error) {
	if delta.IsZero() {
		return nil, invalid("delta", ErrInvalidQuantity, "adjustment of zero")
	}
	if strings.TrimSpace(note) == "" {
		return nil, invalid("note", ErrInvalidDraft, "adjustments need a reason")
	}
	return s.move(ctx, productID, delta, models.MovementAdjustment, operatorID, note)
}

func (s *SaleService) move(ctx context.Context, productID string, amount decimal.Decimal, kind models.MovementKind, operatorID, note string) (*models.StockMovement, error) {
	start := time.Now()
	defer metrics.ObserveDBQuery("stock_movement", start)

	tctx, cancel := context.WithTimeout(ctx, s.opts.CommitTimeout)
	defer cancel()

	var (
		mv *models.StockMovement
		p  *models.Product
	)
	err := s.db.WithContext(tctx).Transaction(func(tx *gorm.DB) error {
		if err := s.setLockTimeout(tx); err != nil {
			return err
		}
		var err error
		if p, err = s.ledger.Lock(tx, productID); err != nil {
			return err
		}
		q, err := models.NewQuantity(p.SaleType, amount)
		if err != nil {
			return invalid("quantity", ErrInvalidQuantity, "%v", err)
		}
		mv, err = s.ledger.Apply(tx, ledger.Movement{
			ProductID:  productID,
			Delta:      q,
			Kind:       kind,
			Note:       note,
			OperatorID: operatorID,
		})
		return err
	})
	if err != nil {
		return nil, classify(string(kind), err)
	}

	p.Quantity = mv.Resulting
	metrics.StockMovements.WithLabelValues(string(kind)).Inc()
	s.afterStockChange([]*models.Product{p})
	logger.WithCtx(ctx).Info("stock: movement",
		"product", productID, "kind", kind, "delta", mv.Delta.String(), "resulting", mv.Resulting.String())
	return mv, nil
}

// afterStockChange tells listeners which products moved and raises low
// stock alerts for those that now sit under their minimum.
func (s *SaleService) afterStockChange(products []*models.Product) {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
		if p.Name != "" && p.BelowMinimum() {
			event.Fire(event.StockLow, event.StockAlert{
				ProductID: p.ID,
				Name:      p.Name,
				Quantity:  p.OnHand().String(),
				MinStock:  p.MinStock.String(),
			})
		}
	}
	if len(ids) > 0 {
		event.Fire(event.StockChanged, ids)
	}
}

// ─── Reads ────────────────────────────────────────────────────────────────────

// FindSale returns a sale with its lines.
func (s *SaleService) FindSale(ctx context.Context, code string) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("code = ?", code).Take(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSaleNotFound, code)
	}
	if err != nil {
		return nil, classify("find sale", err)
	}
	return &sale, nil
}

func (s *SaleService) findByKey(ctx context.Context, key string) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("idempotency_key = ?", key).Take(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find sale", err)
	}
	sale.Replayed = true
	return &sale, nil
}
