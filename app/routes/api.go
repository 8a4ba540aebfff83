// Package routes wires the ventas HTTP API.
package routes

import (
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/ventas/app/controllers"
	"github.com/shashiranjanraj/ventas/app/ledger"
	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/app/repositories"
	"github.com/shashiranjanraj/ventas/app/services"
	"github.com/shashiranjanraj/ventas/pkg/ctx"
	"github.com/shashiranjanraj/ventas/pkg/database"
	"github.com/shashiranjanraj/ventas/pkg/graphql"
	"github.com/shashiranjanraj/ventas/pkg/metrics"
	"github.com/shashiranjanraj/ventas/pkg/middleware"
	"github.com/shashiranjanraj/ventas/pkg/rbac"
	"github.com/shashiranjanraj/ventas/pkg/response"
	"github.com/shashiranjanraj/ventas/pkg/router"
	"github.com/shashiranjanraj/ventas/pkg/ws"
)

// Services holds what the handlers share.
type Services struct {
	DB       *gorm.DB
	Sales    *services.SaleService
	Auth     *services.AuthService
	Users    *repositories.UserRepository
	Products *repositories.ProductRepository
	Failures *repositories.SyncFailureRepository
	Reports  *repositories.ReportRepository
	Alerts   *ws.Hub
}

// NewServices builds the server-side services over db. The alert hub is
// created but not started.
func NewServices(db *gorm.DB, opts services.SaleOptions) (*Services, error) {
	reader, err := database.Reader(db)
	if err != nil {
		return nil, fmt.Errorf("routes: reader: %w", err)
	}
	users := repositories.NewUserRepository(db)
	products := repositories.NewProductRepository(db)
	products.ForgetOnStockChange()

	return &Services{
		DB:       db,
		Sales:    services.NewSaleService(db, ledger.New(db), opts),
		Auth:     services.NewAuthService(users),
		Users:    users,
		Products: products,
		Failures: repositories.NewSyncFailureRepository(db),
		Reports:  repositories.NewReportRepository(reader),
		Alerts:   ws.NewHub(),
	}, nil
}

// RegisterAPI mounts every route on r.
func RegisterAPI(r *router.Router, s *Services) error {
	authC := controllers.NewAuthController(s.Auth, s.Users)
	productC := controllers.NewProductController(s.Products, s.Reports, s.Sales)
	saleC := controllers.NewSaleController(s.Sales, s.Reports)
	stockC := controllers.NewStockController(s.Sales)
	syncC := controllers.NewSyncController(s.Failures)
	reportC := controllers.NewReportController(s.Reports)
	alertC := controllers.NewAlertController(s.Alerts)

	schema, err := controllers.NewGraphQLSchema(s.Products, s.Reports, s.Sales)
	if err != nil {
		return fmt.Errorf("routes: graphql schema: %w", err)
	}

	r.Get("/health", "health", health(s.DB))
	r.Handle("/metrics", "metrics", metrics.Handler())

	api := r.Group("/api")
	api.Post("/login", "auth.login", ctx.Wrap(authC.Login), middleware.RateLimit(10, time.Minute))

	protected := api.Group("", middleware.AuthMiddleware)
	protected.Get("/me", "auth.me", ctx.Wrap(authC.Me))

	protected.Get("/products", "products.index", ctx.Wrap(productC.Index))
	protected.Get("/products/{id}", "products.show", ctx.Wrap(productC.Show))
	protected.Get("/products/{id}/movements", "products.movements", ctx.Wrap(productC.Movements))

	protected.Post("/sales", "sales.store", ctx.Wrap(saleC.Store))
	protected.Get("/sales/{code}", "sales.show", ctx.Wrap(saleC.Show))
	protected.Get("/sales/{code}/movements", "sales.movements", ctx.Wrap(saleC.Movements))

	protected.Post("/sync/failures", "sync.failures.report", ctx.Wrap(syncC.Report))

	managers := protected.Group("", rbac.HasRole(models.RoleManager, models.RoleAdmin))
	managers.Post("/products", "products.store", ctx.Wrap(productC.Store))
	managers.Put("/products/{id}", "products.update", ctx.Wrap(productC.Update))
	managers.Post("/sales/{code}/cancel", "sales.cancel", ctx.Wrap(saleC.Cancel))
	managers.Post("/stock/receive", "stock.receive", ctx.Wrap(stockC.Receive))
	managers.Post("/stock/adjust", "stock.adjust", ctx.Wrap(stockC.Adjust))
	managers.Get("/sync/failures", "sync.failures.index", ctx.Wrap(syncC.Index))
	managers.Post("/sync/failures/{id}/ack", "sync.failures.ack", ctx.Wrap(syncC.Ack))
	managers.Get("/reports/ledger", "reports.ledger", ctx.Wrap(reportC.Ledger))
	managers.Get("/reports/daily", "reports.daily", ctx.Wrap(reportC.Daily))
	managers.Get("/alerts/stream", "alerts.stream", ctx.Wrap(alertC.Stream))

	r.Handle("/graphql", "graphql", graphql.Handler(schema), middleware.AuthMiddleware)
	r.Get("/ws/alerts", "ws.alerts", func(w http.ResponseWriter, req *http.Request) {
		ws.Upgrade(w, req, s.Alerts)
	}, middleware.AuthMiddleware, rbac.HasRole(models.RoleManager, models.RoleAdmin))

	return nil
}

// health is what devices probe before draining their queue.
func health(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			response.Fail(w, http.StatusServiceUnavailable, services.CodeTransient, "database unavailable")
			return
		}
		response.Success(w, map[string]string{"status": "ok"})
	}
}
