package server

import (
	"context"

	"github.com/shashiranjanraj/ventas/app/routes"
	"github.com/shashiranjanraj/ventas/app/services"
	"github.com/shashiranjanraj/ventas/pkg/app"
	"github.com/shashiranjanraj/ventas/pkg/database"
	"github.com/shashiranjanraj/ventas/pkg/logger"
	"github.com/shashiranjanraj/ventas/pkg/router"
	"github.com/shashiranjanraj/ventas/pkg/schedule"
	"github.com/shashiranjanraj/ventas/pkg/ws"
)

// Application returns the API routes over svc.
func Application(svc *routes.Services) *app.Application {
	return app.New().Routes(func(r *router.Router) error {
		return routes.RegisterAPI(r, svc)
	})
}

// Serve boots the store server and blocks until ctx is cancelled.
func Serve(ctx context.Context) error {
	if err := app.Boot(); err != nil {
		return err
	}
	defer app.Shutdown()

	svc, err := routes.NewServices(database.DB, services.SaleOptionsFromConfig())
	if err != nil {
		return err
	}

	go svc.Alerts.Run(ctx)
	ws.RelayEvents(svc.Alerts)

	sched := schedule.New()
	sched.Hourly().Name("ledger-check").WithoutOverlapping().Run(func(ctx context.Context) {
		rows, err := svc.Reports.LedgerChecks(ctx)
		if err != nil {
			logger.Error("ledger: check failed", "error", err)
			return
		}
		for _, c := range rows {
			logger.Error("ledger: stock does not match movements",
				"product_id", c.ProductID, "on_hand", c.OnHand.String(), "moved", c.Moved.String())
		}
	})
	sched.Start(ctx)

	h, err := Application(svc).Handler()
	if err != nil {
		return err
	}
	return Start(ctx, h)
}
