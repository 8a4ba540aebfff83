package controllers

import (
	"github.com/shopspring/decimal"

	"github.com/shashiranjanraj/ventas/app/services"
	"github.com/shashiranjanraj/ventas/pkg/ctx"
)

type StockController struct {
	sales *services.SaleService
}

func NewStockController(sales *services.SaleService) *StockController {
	return &StockController{sales: sales}
}

type ReceiveInput struct {
	ProductID string          `json:"product_id" validate:"required,max=64"`
	Quantity  decimal.Decimal `json:"quantity"   validate:"required,gt=0,scale=3"`
	Note      string          `json:"note"       validate:"nullable,max=255"`
}

// Receive books a delivery.
func (h *StockController) Receive(c *ctx.Context) {
	var in ReceiveInput
	if !c.BindJSON(&in) {
		return
	}
	mv, err := h.sales.ReceiveStock(c.Context(), in.ProductID, in.Quantity, c.Operator(), in.Note)
	if err != nil {
		fail(c, err)
		return
	}
	c.Created(mv)
}

type AdjustInput struct {
	ProductID string          `json:"product_id" validate:"required,max=64"`
	Delta     decimal.Decimal `json:"delta"      validate:"required,scale=3"`
	Note      string          `json:"note"       validate:"required,max=255"`
}

// Adjust applies a signed correction after a stock count.
func (h *StockController) Adjust(c *ctx.Context) {
	var in AdjustInput
	if !c.BindJSON(&in) {
		return
	}
	mv, err := h.sales.AdjustStock(c.Context(), in.ProductID, in.Delta, c.Operator(), in.Note)
	if err != nil {
		fail(c, err)
		return
	}
	c.Created(mv)
}
