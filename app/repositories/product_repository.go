package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/pkg/cache"
	"github.com/shashiranjanraj/ventas/pkg/event"
	"github.com/shashiranjanraj/ventas/pkg/orm"
)

var ErrProductNotFound = errors.New("product: not found")

const productCacheTTL = 5 * time.Minute

func productKey(id string) string { return "ventas:product:" + id }

// ProductFilter narrows a product listing.
type ProductFilter struct {
	Search   string
	LowStock bool
	Page     int
	PerPage  int
}

// ProductRepository reads and edits the catalogue. Stock is read-only here;
// only the ledger changes it.
type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns one page of products ordered by name.
func (r *ProductRepository) List(ctx context.Context, f ProductFilter) ([]models.Product, orm.Pagination, error) {
	var products []models.Product
	search := strings.TrimSpace(f.Search)
	page, err := orm.From(r.db).Model(&models.Product{}).
		WhereIf(search != "", "name LIKE ? OR id = ?", "%"+search+"%", search).
		WhereIf(f.LowStock, "min_stock > 0 AND quantity < min_stock").
		OrderBy("name").
		Paginate(ctx, f.Page, f.PerPage, &products)
	if err != nil {
		return nil, orm.Pagination{}, fmt.Errorf("product: list: %w", err)
	}
	return products, page, nil
}

// Find returns a product, served from the cache when possible. The cached
// stock is a snapshot; commits always re-read under lock.
func (r *ProductRepository) Find(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	err := orm.From(r.db).Model(&models.Product{}).Where("id = ?", id).
		CacheFirst(ctx, productKey(id), productCacheTTL, &p)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("product: find %s: %w", id, err)
	}
	return &p, nil
}

// Create adds a product with no stock. Opening stock is received through
// the ledger so it leaves a movement.
func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	p.Quantity = decimal.Zero
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("product: create %s: %w", p.ID, err)
	}
	return nil
}

// ProductChanges are the editable catalogue fields; nil leaves a field as is.
type ProductChanges struct {
	Name      *string
	UnitPrice *decimal.Decimal
	MinStock  *decimal.Decimal
}

// Update edits catalogue fields. Quantity cannot be changed here.
func (r *ProductRepository) Update(ctx context.Context, id string, c ProductChanges) (*models.Product, error) {
	fields := map[string]any{}
	if c.Name != nil {
		fields["name"] = *c.Name
	}
	if c.UnitPrice != nil {
		fields["unit_price"] = *c.UnitPrice
	}
	if c.MinStock != nil {
		fields["min_stock"] = *c.MinStock
	}

	if len(fields) > 0 {
		res := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return nil, fmt.Errorf("product: update %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		r.Forget(id)
	}
	return r.Find(ctx, id)
}

// Forget drops cached snapshots.
func (r *ProductRepository) Forget(ids ...string) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	_ = cache.Del(keys...)
}

// ForgetOnStockChange keeps the cache in step with the ledger.
func (r *ProductRepository) ForgetOnStockChange() {
	event.Listen(event.StockChanged, func(payload any) {
		if ids, ok := payload.([]string); ok {
			r.Forget(ids...)
		}
	})
}
