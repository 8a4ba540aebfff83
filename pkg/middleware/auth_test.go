package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/ventas/pkg/auth"
	"github.com/shashiranjanraj/ventas/pkg/middleware"
	"github.com/shashiranjanraj/ventas/pkg/rbac"
)

func whoami(w http.ResponseWriter, r *http.Request) {
	c, ok := middleware.ClaimsFromCtx(r)
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	w.Write([]byte(c.Username + ":" + c.Role)) //nolint:errcheck
}

func call(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthInjectsClaims(t *testing.T) {
	tok, err := auth.GenerateToken(7, "ana", "cashier", time.Hour)
	require.NoError(t, err)

	h := middleware.AuthMiddleware(http.HandlerFunc(whoami))

	rec := call(h, tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana:cashier", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(h, "garbage").Code)
}

func TestHasRole(t *testing.T) {
	cashier, _ := auth.GenerateToken(1, "ana", "cashier", time.Hour)
	manager, _ := auth.GenerateToken(2, "luis", "manager", time.Hour)

	h := middleware.AuthMiddleware(rbac.HasRole("manager")(http.HandlerFunc(whoami)))

	assert.Equal(t, http.StatusForbidden, call(h, cashier).Code)
	assert.Equal(t, http.StatusOK, call(h, manager).Code)
}

func TestRateLimitPerDevice(t *testing.T) {
	h := middleware.RateLimit(1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	send := func(device string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9:5000"
		req.Header.Set("X-Device-ID", device)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("till-1"))
	assert.Equal(t, http.StatusTooManyRequests, send("till-1"))
	assert.Equal(t, http.StatusOK, send("till-2"))
}
