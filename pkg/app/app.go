// Package app boots ventas: configuration, logging, the database and the
// cache, then the HTTP handler with its global middleware.
//
//	if err := app.Boot(); err != nil { ... }
//	defer app.Shutdown()
//
//	h, err := app.New().Routes(func(r *router.Router) error {
//	    return routes.RegisterAPI(r, svc)
//	}).Handler()
package app

import (
	"fmt"

	"github.com/shashiranjanraj/ventas/pkg/router"
)

// RoutesFunc registers routes on r.
type RoutesFunc func(r *router.Router) error

// ─── Application Builder ──────────────────────────────────────────────────────

// Application collects route registrations and builds the HTTP handler.
type Application struct {
	routesFns []RoutesFunc
	rateLimit int
}

func New() *Application {
	return &Application{rateLimit: 600}
}

// Routes adds a registration callback. Callbacks run in order.
func (a *Application) Routes(fn RoutesFunc) *Application {
	a.routesFns = append(a.routesFns, fn)
	return a
}

// RateLimit sets the per-client request budget per minute.
func (a *Application) RateLimit(perMinute int) *Application {
	a.rateLimit = perMinute
	return a
}

// Router builds a router with every registration applied but no global
// middleware, for listing routes.
func (a *Application) Router() (*router.Router, error) {
	r := router.New()
	for _, fn := range a.routesFns {
		if err := fn(r); err != nil {
			return nil, fmt.Errorf("app: register routes: %w", err)
		}
	}
	return r, nil
}
