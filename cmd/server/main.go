// Command server runs the ventas store server only. The ventas CLI offers
// the same through `ventas serve` plus the maintenance and device commands.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shashiranjanraj/ventas/internal/server"
	"github.com/shashiranjanraj/ventas/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(ctx); err != nil {
		logger.Error("server: exited", "error", err)
		stop()
		os.Exit(1)
	}
}
