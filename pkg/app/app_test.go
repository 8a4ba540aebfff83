package app_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/ventas/pkg/app"
	"github.com/shashiranjanraj/ventas/pkg/reqid"
	"github.com/shashiranjanraj/ventas/pkg/router"
	"github.com/shashiranjanraj/ventas/pkg/testkit"
)

func TestHandlerAppliesGlobalMiddleware(t *testing.T) {
	h, err := app.New().Routes(func(r *router.Router) error {
		r.Get("/ping", "ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
		r.Get("/boom", "boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
		return nil
	}).Handler()
	require.NoError(t, err)

	rec := testkit.Request(t, h, http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(reqid.Header))

	rec = testkit.Request(t, h, http.MethodGet, "/boom", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", testkit.Decode(t, rec, nil).Code)
}

func TestRouteErrorsSurface(t *testing.T) {
	_, err := app.New().Routes(func(*router.Router) error { return errors.New("no schema") }).Handler()
	assert.ErrorContains(t, err, "no schema")

	r, err := app.New().Routes(func(r *router.Router) error {
		r.Get("/a", "a", func(http.ResponseWriter, *http.Request) {})
		return nil
	}).Router()
	require.NoError(t, err)
	assert.Len(t, r.Routes(), 1)
}
