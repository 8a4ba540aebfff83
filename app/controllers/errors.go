package controllers

import (
	"errors"
	"net/http"

	"github.com/shashiranjanraj/ventas/app/ledger"
	"github.com/shashiranjanraj/ventas/app/repositories"
	"github.com/shashiranjanraj/ventas/app/services"
	"github.com/shashiranjanraj/ventas/pkg/ctx"
	"github.com/shashiranjanraj/ventas/pkg/logger"
)

// fail answers err with its stable code and the matching status.
func fail(c *ctx.Context, err error) {
	code := services.Code(err)

	var ve *services.ValidationError
	if errors.As(err, &ve) {
		c.FailWith(http.StatusUnprocessableEntity, code, err.Error(), map[string]string{ve.Field: ve.Detail})
		return
	}

	var ise *ledger.InsufficientStockError
	if errors.As(err, &ise) {
		c.FailWith(http.StatusConflict, code, err.Error(), map[string]string{
			"product_id": ise.ProductID,
			"available":  ise.Available.String(),
			"requested":  ise.Requested.String(),
		})
		return
	}

	switch {
	case errors.Is(err, repositories.ErrProductNotFound):
		c.Fail(http.StatusNotFound, services.CodeProductNotFound, err.Error())
	case errors.Is(err, repositories.ErrSyncFailureNotFound):
		c.Fail(http.StatusNotFound, "sync_failure_not_found", err.Error())
	}
	if c.WrittenStatus() != 0 {
		return
	}

	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		logger.WithCtx(c.Context()).Error("request failed", "code", code, "error", err)
	}
	if code == services.CodeTransient {
		c.SetHeader("Retry-After", "1")
	}
	message := err.Error()
	if code == services.CodePersistence {
		message = "Internal Server Error"
	}
	c.Fail(status, code, message)
}

func statusFor(code string) int {
	switch code {
	case services.CodeEmptyCart, services.CodeInvalidQuantity, services.CodeInvalidPrice,
		services.CodeInvalidPaymentMethod, services.CodeInvalidDraft:
		return http.StatusUnprocessableEntity
	case services.CodeInsufficientStock, services.CodeSaleNotCancellable:
		return http.StatusConflict
	case services.CodeProductNotFound, services.CodeSaleNotFound:
		return http.StatusNotFound
	case services.CodeInvalidCredentials:
		return http.StatusUnauthorized
	case services.CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
