package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/ventas/app/services"
	"github.com/shashiranjanraj/ventas/config"
	"github.com/shashiranjanraj/ventas/internal/simulate"
	"github.com/shashiranjanraj/ventas/pkg/database"
)

var (
	simOpts simulate.Options
	simDSN  string
)

// ventas simulate
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Sell one product from many tills at once and check for overselling",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(); err != nil {
			return err
		}
		db, err := database.Open("sqlite", simDSN)
		if err != nil {
			return err
		}

		res, err := simulate.Run(cmd.Context(), db, services.SaleOptionsFromConfig(), simOpts)
		if err != nil {
			return err
		}
		if err := printJSON(res); err != nil {
			return err
		}
		if res.Oversold || !res.LedgerBalanced {
			return fmt.Errorf("simulate: stock invariant violated")
		}
		return nil
	},
}

func init() {
	f := simulateCmd.Flags()
	f.IntVar(&simOpts.Tills, "tills", 8, "concurrent tills")
	f.IntVar(&simOpts.SalesPerTill, "sales", 25, "sales attempted per till")
	f.Int64Var(&simOpts.Stock, "stock", 100, "opening stock")
	f.Int64Var(&simOpts.Quantity, "qty", 1, "units per sale")
	f.BoolVar(&simOpts.Offline, "offline", false, "queue on each till first, then drain all tills together")
	f.StringVar(&simDSN, "dsn", "file:simulate?mode=memory&cache=shared", "sqlite database to run in")
}
