package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/app/offline"
	"github.com/shashiranjanraj/ventas/pkg/schedule"
)

var (
	checkoutLines    []string
	checkoutPayment  string
	checkoutOperator string
	checkoutCustomer string
	syncOnce         bool
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseLine reads PRODUCT:QTY:PRICE.
func parseLine(s string) (models.CartLine, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return models.CartLine{}, fmt.Errorf("line %q: want PRODUCT:QTY:PRICE", s)
	}
	qty, err := decimal.NewFromString(parts[1])
	if err != nil {
		return models.CartLine{}, fmt.Errorf("line %q: quantity: %w", s, err)
	}
	price, err := decimal.NewFromString(parts[2])
	if err != nil {
		return models.CartLine{}, fmt.Errorf("line %q: price: %w", s, err)
	}
	return models.CartLine{ProductID: parts[0], Quantity: qty, UnitPrice: price}, nil
}

// ventas device:checkout
var deviceCheckoutCmd = &cobra.Command{
	Use:   "device:checkout",
	Short: "Commit a sale, or queue it when the server is unreachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(checkoutLines) == 0 {
			return fmt.Errorf("at least one --line is required")
		}
		draft := models.SaleDraft{
			OperatorID:    checkoutOperator,
			CustomerLabel: checkoutCustomer,
			PaymentMethod: checkoutPayment,
			DraftedAt:     time.Now().UTC(),
		}
		for _, s := range checkoutLines {
			l, err := parseLine(s)
			if err != nil {
				return err
			}
			draft.Lines = append(draft.Lines, l)
		}

		d, err := openDevice()
		if err != nil {
			return err
		}
		defer d.close()

		out, err := d.syncer.Checkout(cmd.Context(), draft)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

// ventas device:sync
var deviceSyncCmd = &cobra.Command{
	Use:   "device:sync",
	Short: "Drain queued sales into the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice()
		if err != nil {
			return err
		}
		defer d.close()

		if syncOnce {
			report, err := d.syncer.RunCycle(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(report)
		}

		ctx, stop := signalContext()
		defer stop()

		sched := schedule.New()
		d.syncer.Start(ctx, sched)
		sched.Start(ctx)
		fmt.Println("Sync loop started. Press Ctrl+C to stop.")

		<-ctx.Done()
		fmt.Println("Sync loop stopped.")
		return nil
	},
}

func printQueue(list []offline.PendingLocalSale) error {
	if len(list) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "LOCAL ID\tSTATUS\tLINES\tATTEMPTS\tCREATED\tFAILURE")
	for _, p := range list {
		failure := ""
		if p.Status == offline.StatusFailed {
			failure = p.FailureCode + ": " + p.FailureReason
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			p.LocalID, p.Status, len(p.Draft.Lines), p.Attempts, p.CreatedAt.Format(time.RFC3339), failure)
	}
	return w.Flush()
}

// ventas device:pending
var devicePendingCmd = &cobra.Command{
	Use:   "device:pending",
	Short: "List every queued draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice()
		if err != nil {
			return err
		}
		defer d.close()

		list, err := d.queue.All(cmd.Context())
		if err != nil {
			return err
		}
		if err := printQueue(list); err != nil {
			return err
		}
		if lock, err := d.locker.Inspect(cmd.Context()); err == nil && lock != nil {
			fmt.Printf("\nSync lock held by %s since %s\n", lock.Owner, lock.AcquiredAt.Format(time.RFC3339))
		}
		return nil
	},
}

// ventas device:failed
var deviceFailedCmd = &cobra.Command{
	Use:   "device:failed",
	Short: "List drafts the server rejected",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice()
		if err != nil {
			return err
		}
		defer d.close()

		list, err := d.queue.Failed(cmd.Context())
		if err != nil {
			return err
		}
		return printQueue(list)
	},
}

// ventas device:ack
var deviceAckCmd = &cobra.Command{
	Use:   "device:ack LOCAL_ID",
	Short: "Remove a failed draft after it has been dealt with",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDevice()
		if err != nil {
			return err
		}
		defer d.close()

		if err := d.queue.Acknowledge(context.WithoutCancel(cmd.Context()), args[0]); err != nil {
			return err
		}
		fmt.Printf("Acknowledged %s\n", args[0])
		return nil
	},
}

func init() {
	deviceCheckoutCmd.Flags().StringArrayVarP(&checkoutLines, "line", "l", nil, "cart line as PRODUCT:QTY:PRICE (repeatable)")
	deviceCheckoutCmd.Flags().StringVarP(&checkoutPayment, "payment", "p", "cash", "payment method")
	deviceCheckoutCmd.Flags().StringVarP(&checkoutOperator, "operator", "o", "", "operator id (defaults to the token's user)")
	deviceCheckoutCmd.Flags().StringVar(&checkoutCustomer, "customer", "", "customer label")
	deviceSyncCmd.Flags().BoolVar(&syncOnce, "once", false, "run a single cycle and print its report")
}
