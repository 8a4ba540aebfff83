package ctx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/shashiranjanraj/ventas/pkg/ctx"
)

func serve(method, target, body string, h appctx.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	appctx.Wrap(h)(rec, req)
	return rec
}

func envelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestSuccessAndCreated(t *testing.T) {
	rec := serve(http.MethodGet, "/", "", func(c *appctx.Context) { c.Success(map[string]any{"id": 1}) })
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(200), envelope(t, rec)["status"])

	rec = serve(http.MethodPost, "/", "", func(c *appctx.Context) { c.Created("x") })
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "x", envelope(t, rec)["data"])
}

func TestFailCarriesCode(t *testing.T) {
	var written int
	rec := serve(http.MethodGet, "/", "", func(c *appctx.Context) {
		c.Fail(http.StatusConflict, "insufficient_stock", "only 2 left")
		written = c.WrittenStatus()
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, http.StatusConflict, written)
	env := envelope(t, rec)
	assert.Equal(t, "insufficient_stock", env["code"])
	assert.Equal(t, "only 2 left", env["message"])
}

func TestBindJSON(t *testing.T) {
	type input struct {
		Name string `json:"name" validate:"required"`
	}

	rec := serve(http.MethodPost, "/", `{"name":"x"}`, func(c *appctx.Context) {
		var in input
		if c.BindJSON(&in) {
			c.Success(in.Name)
		}
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(http.MethodPost, "/", `{}`, func(c *appctx.Context) {
		var in input
		c.BindJSON(&in)
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, envelope(t, rec)["errors"], "name")

	rec = serve(http.MethodPost, "/", `{bad`, func(c *appctx.Context) {
		var in input
		c.BindJSON(&in)
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", envelope(t, rec)["code"])
}

func TestParamsAndQuery(t *testing.T) {
	r := chi.NewRouter()
	var id uint
	var ok bool
	var page int
	r.Get("/items/{id}", appctx.Wrap(func(c *appctx.Context) {
		id, ok = c.ParamUint("id")
		page = c.IntQuery("page", 1)
		c.Status(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42?page=3", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)
	assert.Equal(t, 3, page)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/abc?page=x", nil))
	assert.False(t, ok)
	assert.Equal(t, 1, page)
}
