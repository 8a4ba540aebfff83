// Package ctx gives handlers one request context with helpers for path
// params, binding and the JSON envelope.
//
//	func (h *SaleController) Show(c *ctx.Context) {
//	    sale, err := h.sales.FindSale(c.Context(), c.Param("code"))
//	    ...
//	    c.Success(sale)
//	}
//
//	router.Get("/sales/{code}", "sales.show", ctx.Wrap(h.Show))
package ctx

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/shashiranjanraj/ventas/pkg/auth"
	"github.com/shashiranjanraj/ventas/pkg/bind"
	"github.com/shashiranjanraj/ventas/pkg/middleware"
	"github.com/shashiranjanraj/ventas/pkg/orm"
	"github.com/shashiranjanraj/ventas/pkg/response"
	"github.com/shashiranjanraj/ventas/pkg/validate"
)

type HandlerFunc func(c *Context)

// Wrap adapts a HandlerFunc to http.HandlerFunc.
func Wrap(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := acquire(w, r)
		defer release(c)
		h(c)
	}
}

// ─── Context ──────────────────────────────────────────────────────────────────

type Context struct {
	W      http.ResponseWriter
	R      *http.Request
	status int // 0 until written
}

var pool = sync.Pool{
	New: func() any { return &Context{} },
}

func acquire(w http.ResponseWriter, r *http.Request) *Context {
	c := pool.Get().(*Context)
	c.W = w
	c.R = r
	c.status = 0
	return c
}

func release(c *Context) {
	c.W = nil
	c.R = nil
	pool.Put(c)
}

// ─── Request helpers ──────────────────────────────────────────────────────────

func (c *Context) Param(key string) string {
	return chi.URLParam(c.R, key)
}

func (c *Context) Query(key string) string {
	return c.R.URL.Query().Get(key)
}

func (c *Context) DefaultQuery(key, def string) string {
	if v := c.Query(key); v != "" {
		return v
	}
	return def
}

// IntQuery parses a query value, falling back to def when absent or bad.
func (c *Context) IntQuery(key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return n
}

// ParamUint parses a numeric path parameter.
func (c *Context) ParamUint(key string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(key), 10, 64)
	return uint(n), err == nil
}

func (c *Context) Header(key string) string {
	return strings.TrimSpace(c.R.Header.Get(key))
}

func (c *Context) Context() context.Context { return c.R.Context() }

// Claims returns the authenticated operator.
func (c *Context) Claims() (*auth.Claims, bool) {
	return middleware.ClaimsFromCtx(c.R)
}

// Operator is the authenticated username, or "" on public routes.
func (c *Context) Operator() string {
	if cl, ok := c.Claims(); ok {
		return cl.Username
	}
	return ""
}

// ─── Binding ──────────────────────────────────────────────────────────────────

// BindJSON decodes and validates the body. On failure it has already
// answered 400 or 422 and returns false.
//
//	var in ReceiveInput
//	if !c.BindJSON(&in) {
//	    return
//	}
func (c *Context) BindJSON(dest any) bool {
	errs, err := bind.JSON(c.R, dest)
	if err != nil {
		c.Fail(http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	if validate.HasErrors(errs) {
		c.ValidationError(errs)
		return false
	}
	return true
}

// ─── Responses ────────────────────────────────────────────────────────────────

func (c *Context) SetHeader(key, value string) {
	c.W.Header().Set(key, value)
}

func (c *Context) Status(code int) {
	c.status = code
	c.W.WriteHeader(code)
}

func (c *Context) Success(data any) {
	c.status = http.StatusOK
	response.Success(c.W, data)
}

func (c *Context) Created(data any) {
	c.status = http.StatusCreated
	response.Created(c.W, data)
}

func (c *Context) Paginated(data any, p orm.Pagination) {
	c.status = http.StatusOK
	response.Paginated(c.W, data, p)
}

func (c *Context) Error(code int, message string) {
	c.status = code
	response.Error(c.W, code, message)
}

// Fail answers with a machine code next to the message.
func (c *Context) Fail(code int, errCode, message string) {
	c.status = code
	response.Fail(c.W, code, errCode, message)
}

func (c *Context) FailWith(code int, errCode, message string, data any) {
	c.status = code
	response.FailWith(c.W, code, errCode, message, data)
}

func (c *Context) ValidationError(errs map[string]string) {
	c.status = http.StatusUnprocessableEntity
	response.ValidationError(c.W, errs)
}

func (c *Context) NotFound(message ...string) {
	msg := "Not found"
	if len(message) > 0 {
		msg = message[0]
	}
	c.Fail(http.StatusNotFound, "not_found", msg)
}

func (c *Context) Forbidden() {
	c.status = http.StatusForbidden
	response.Forbidden(c.W)
}

// WrittenStatus is the status sent so far, or 0.
func (c *Context) WrittenStatus() int { return c.status }
