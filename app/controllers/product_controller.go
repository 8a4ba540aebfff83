package controllers

import (
	"github.com/shopspring/decimal"

	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/app/repositories"
	"github.com/shashiranjanraj/ventas/app/services"
	"github.com/shashiranjanraj/ventas/pkg/ctx"
)

type ProductController struct {
	products *repositories.ProductRepository
	reports  *repositories.ReportRepository
	sales    *services.SaleService
}

func NewProductController(products *repositories.ProductRepository, reports *repositories.ReportRepository, sales *services.SaleService) *ProductController {
	return &ProductController{products: products, reports: reports, sales: sales}
}

// Index lists products: ?search=, ?low_stock=1, ?page=, ?per_page=.
func (h *ProductController) Index(c *ctx.Context) {
	items, page, err := h.products.List(c.Context(), repositories.ProductFilter{
		Search:   c.Query("search"),
		LowStock: c.Query("low_stock") == "1" || c.Query("low_stock") == "true",
		Page:     c.IntQuery("page", 1),
		PerPage:  c.IntQuery("per_page", 0),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.Paginated(items, page)
}

// Show returns a cached product snapshot.
func (h *ProductController) Show(c *ctx.Context) {
	p, err := h.products.Find(c.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(p)
}

type ProductInput struct {
	ID           string          `json:"id"            validate:"required,alpha_dash,max=64"`
	Name         string          `json:"name"          validate:"required,max=255"`
	UnitPrice    decimal.Decimal `json:"unit_price"    validate:"gte=0,scale=2"`
	SaleType     models.SaleType `json:"sale_type"     validate:"required,in=unit,weight"`
	MinStock     decimal.Decimal `json:"min_stock"     validate:"gte=0,scale=3"`
	OpeningStock decimal.Decimal `json:"opening_stock" validate:"gte=0,scale=3"`
}

// Store creates a product. Opening stock is booked as a delivery.
func (h *ProductController) Store(c *ctx.Context) {
	var in ProductInput
	if !c.BindJSON(&in) {
		return
	}

	p := &models.Product{
		ID:        in.ID,
		Name:      in.Name,
		UnitPrice: in.UnitPrice,
		SaleType:  in.SaleType,
		MinStock:  in.MinStock,
	}
	if err := h.products.Create(c.Context(), p); err != nil {
		fail(c, err)
		return
	}
	if in.OpeningStock.IsPositive() {
		if _, err := h.sales.ReceiveStock(c.Context(), p.ID, in.OpeningStock, c.Operator(), "opening stock"); err != nil {
			fail(c, err)
			return
		}
	}

	created, err := h.products.Find(c.Context(), p.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.Created(created)
}

type ProductUpdateInput struct {
	Name      *string          `json:"name"       validate:"nullable,max=255"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	MinStock  *decimal.Decimal `json:"min_stock"`
}

// Update edits catalogue fields. Stock is changed through /api/stock.
func (h *ProductController) Update(c *ctx.Context) {
	var in ProductUpdateInput
	if !c.BindJSON(&in) {
		return
	}
	errs := map[string]string{}
	if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
		errs["unit_price"] = "The unit_price must be at least 0."
	}
	if in.MinStock != nil && in.MinStock.IsNegative() {
		errs["min_stock"] = "The min_stock must be at least 0."
	}
	if len(errs) > 0 {
		c.ValidationError(errs)
		return
	}

	p, err := h.products.Update(c.Context(), c.Param("id"), repositories.ProductChanges{
		Name:      in.Name,
		UnitPrice: in.UnitPrice,
		MinStock:  in.MinStock,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(p)
}

// Movements lists a product's stock history, newest first.
func (h *ProductController) Movements(c *ctx.Context) {
	id := c.Param("id")
	if _, err := h.products.Find(c.Context(), id); err != nil {
		fail(c, err)
		return
	}
	mvs, err := h.reports.ProductMovements(c.Context(), id, c.IntQuery("limit", 100))
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(mvs)
}
