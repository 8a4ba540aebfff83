package controllers

import (
	"net/http"

	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/app/repositories"
	"github.com/shashiranjanraj/ventas/app/services"
	"github.com/shashiranjanraj/ventas/pkg/ctx"
)

// IdempotencyHeader carries the caller's retry key for a sale.
const IdempotencyHeader = "Idempotency-Key"

type SaleController struct {
	sales   *services.SaleService
	reports *repositories.ReportRepository
}

func NewSaleController(sales *services.SaleService, reports *repositories.ReportRepository) *SaleController {
	return &SaleController{sales: sales, reports: reports}
}

// stampOperator fills the draft's operator from the token. Only managers
// and device accounts may name someone else.
func (h *SaleController) stampOperator(c *ctx.Context, draft *models.SaleDraft) bool {
	me := c.Operator()
	if draft.OperatorID == "" || draft.OperatorID == me {
		draft.OperatorID = me
		return true
	}
	if cl, ok := c.Claims(); ok && models.MayRecordFor(cl.Role) {
		return true
	}
	c.Fail(http.StatusForbidden, "operator_mismatch", "operator_id must be the signed-in operator")
	return false
}

// Store commits a draft: 201 for a new sale, 200 when the idempotency key
// already produced one.
func (h *SaleController) Store(c *ctx.Context) {
	var draft models.SaleDraft
	if !c.BindJSON(&draft) {
		return
	}
	if key := c.Header(IdempotencyHeader); key != "" {
		draft = draft.WithIdempotencyKey(key)
	}
	if !h.stampOperator(c, &draft) {
		return
	}

	sale, err := h.sales.CommitSale(c.Context(), draft)
	if err != nil {
		fail(c, err)
		return
	}
	if sale.Replayed {
		c.Success(sale)
		return
	}
	c.SetHeader("Location", "/api/sales/"+sale.Code)
	c.Created(sale)
}

func (h *SaleController) Show(c *ctx.Context) {
	sale, err := h.sales.FindSale(c.Context(), c.Param("code"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(sale)
}

// Movements lists the stock movements a sale caused.
func (h *SaleController) Movements(c *ctx.Context) {
	code := c.Param("code")
	if _, err := h.sales.FindSale(c.Context(), code); err != nil {
		fail(c, err)
		return
	}
	mvs, err := h.reports.SaleMovements(c.Context(), code)
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(mvs)
}

type CancelInput struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// Cancel returns a sale's stock and flags it cancelled.
func (h *SaleController) Cancel(c *ctx.Context) {
	var in CancelInput
	if !c.BindJSON(&in) {
		return
	}
	sale, err := h.sales.CancelSale(c.Context(), c.Param("code"), c.Operator(), in.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(sale)
}
