package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/shashiranjanraj/ventas/pkg/metrics"
	"github.com/shashiranjanraj/ventas/pkg/middleware"
	"github.com/shashiranjanraj/ventas/pkg/reqid"
	"github.com/shashiranjanraj/ventas/pkg/router"
)

// Handler builds the HTTP handler. Global middleware, outermost first:
// metrics, recovery, request id, logger, CORS, rate limit.
func (a *Application) Handler() (http.Handler, error) {
	r := router.New()
	r.Use(metrics.Middleware())
	r.Use(middleware.Recovery)
	r.Use(reqid.Middleware())
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(middleware.DefaultCORSOptions()))
	r.Use(middleware.RateLimit(a.rateLimit, time.Minute))

	for _, fn := range a.routesFns {
		if err := fn(r); err != nil {
			return nil, fmt.Errorf("app: register routes: %w", err)
		}
	}
	return r.Handler(), nil
}
