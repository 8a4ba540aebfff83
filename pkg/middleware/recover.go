package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"

	"github.com/shashiranjanraj/ventas/pkg/logger"
	"github.com/shashiranjanraj/ventas/pkg/metrics"
	"github.com/shashiranjanraj/ventas/pkg/response"
)

// Recovery turns a handler panic into a 500 with the "internal_error" code.
// A panic inside a sale commit has already rolled its transaction back by
// the time it reaches here, so the till may retry with the same key.
//
// http.ErrAbortHandler is re-raised; net/http uses it to drop a stream.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			metrics.HandlerPanics.WithLabelValues(route).Inc()

			logger.WithCtx(r.Context()).Error("panic recovered",
				"error", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
				"method", r.Method,
				"route", route,
				"device", r.Header.Get("X-Device-ID"),
			)
			response.Fail(w, http.StatusInternalServerError, "internal_error", "Internal Server Error")
		}()
		next.ServeHTTP(w, r)
	})
}
