package controllers

import (
	"net/http"
	"time"

	"github.com/shashiranjanraj/ventas/app/repositories"
	"github.com/shashiranjanraj/ventas/pkg/ctx"
)

type ReportController struct {
	reports *repositories.ReportRepository
}

func NewReportController(reports *repositories.ReportRepository) *ReportController {
	return &ReportController{reports: reports}
}

// Ledger lists products whose stock disagrees with their movements.
func (h *ReportController) Ledger(c *ctx.Context) {
	rows, err := h.reports.LedgerChecks(c.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(map[string]any{"balanced": len(rows) == 0, "mismatches": rows})
}

// Daily totals completed sales per day: ?from=2026-01-01&to=2026-02-01.
func (h *ReportController) Daily(c *ctx.Context) {
	end := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	to, err := time.Parse(time.DateOnly, c.DefaultQuery("to", end.Format(time.DateOnly)))
	if err != nil {
		c.Fail(http.StatusUnprocessableEntity, "invalid_date", "to must be YYYY-MM-DD")
		return
	}
	from, err := time.Parse(time.DateOnly, c.DefaultQuery("from", to.AddDate(0, 0, -7).Format(time.DateOnly)))
	if err != nil {
		c.Fail(http.StatusUnprocessableEntity, "invalid_date", "from must be YYYY-MM-DD")
		return
	}

	rows, err := h.reports.SalesBetween(c.Context(), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(rows)
}
