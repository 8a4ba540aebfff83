// Command ventas is the store server and till CLI.
//
// Server side:
//
//	ventas serve
//	ventas migrate | migrate:rollback | migrate:status
//	ventas seed
//	ventas route:list
//
// On a till, where sales are queued while the server is unreachable:
//
//	ventas device:checkout --line COLA-355:2:1.50 --payment cash
//	ventas device:sync [--once]
//	ventas device:pending
//	ventas device:failed
//	ventas device:ack LOCAL-...
//
// Load test of the commit path:
//
//	ventas simulate --tills 8 --sales 200 --stock 100
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/shashiranjanraj/ventas/database/migrations"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "ventas",
	Short:         "ventas: point-of-sale commit and offline sync",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	// Server
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routeListCmd)

	// Database
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(migrateRollbackCmd)
	rootCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(seedCmd)

	// Device
	rootCmd.AddCommand(deviceCheckoutCmd)
	rootCmd.AddCommand(deviceSyncCmd)
	rootCmd.AddCommand(devicePendingCmd)
	rootCmd.AddCommand(deviceFailedCmd)
	rootCmd.AddCommand(deviceAckCmd)

	rootCmd.AddCommand(simulateCmd)
}
