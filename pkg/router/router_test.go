package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupsJoinPrefixesAndMiddleware(t *testing.T) {
	r := New()
	var order []string
	mw := func(tag string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				order = append(order, tag)
				next.ServeHTTP(w, req)
			})
		}
	}

	api := r.Group("/api", mw("api"))
	sales := api.Group("sales/", mw("sales"))
	sales.Post("{code}/cancel", "sales.cancel", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sales/VEN000001/cancel", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"api", "sales"}, order)

	url, err := r.URL("sales.cancel", map[string]string{"code": "VEN000001"})
	require.NoError(t, err)
	assert.Equal(t, "/api/sales/VEN000001/cancel", url)

	_, err = r.URL("sales.cancel", nil)
	assert.Error(t, err)
}

func TestRoutesAreListed(t *testing.T) {
	r := New()
	noop := func(http.ResponseWriter, *http.Request) {}
	r.Get("/health", "health", noop)
	api := r.Group("/api")
	api.Delete("/x", "", noop)
	api.Put("/x", "x.update", noop)
	r.Handle("/metrics", "metrics", http.NotFoundHandler())

	assert.Equal(t, []Route{
		{Method: http.MethodDelete, Path: "/api/x"},
		{Method: http.MethodPut, Path: "/api/x", Name: "x.update"},
		{Method: http.MethodGet, Path: "/health", Name: "health"},
		{Method: "*", Path: "/metrics", Name: "metrics"},
	}, r.Routes())
}
