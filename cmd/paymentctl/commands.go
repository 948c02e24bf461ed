package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"marketplace/internal/usecase"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [reference]",
		Short: "Verify one payment with the gateway and settle it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Settlement.Reconcile(cmd.Context(), args[0], usecase.TriggerOperator)
			if err != nil {
				return err
			}
			return render(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "reference: %s\n", res.Reference)
				fmt.Fprintf(w, "status:    %s\n", res.Status)
				fmt.Fprintf(w, "order:     %s\n", res.OrderID)
				fmt.Fprintf(w, "amount:    %s %s\n", res.Amount.StringFixed(2), res.Currency)
			})
		},
	}
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-verify pending payments older than a threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			limit, _ := cmd.Flags().GetInt("limit")

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			rep, err := app.Settlement.SweepPending(cmd.Context(), olderThan, limit)
			if err != nil {
				return err
			}
			return render(cmd, rep, func(w io.Writer) {
				fmt.Fprintf(w, "checked:   %d\n", rep.Checked)
				fmt.Fprintf(w, "succeeded: %d\n", rep.Succeeded)
				fmt.Fprintf(w, "failed:    %d\n", rep.Failed)
				fmt.Fprintf(w, "pending:   %d\n", rep.Pending)
				fmt.Fprintf(w, "errors:    %d\n", rep.Errors)
			})
		},
	}

	cmd.Flags().Duration("older-than", 30*time.Minute, "Only payments created before now minus this")
	cmd.Flags().IntP("limit", "n", 100, "Maximum payments to check")

	return cmd
}

func provisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision [vendor-id]",
		Short: "Create the payout subaccount for an approved vendor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			out, err := app.Payout.Provision(cmd.Context(), "", args[0])
			if err != nil {
				return err
			}
			return render(cmd, out, func(w io.Writer) {
				state := "existing"
				if out.Created {
					state = "created"
				}
				fmt.Fprintf(w, "%s (%s)\n", out.SubaccountCode, state)
			})
		},
	}
}

func orphansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List pending orders that have no items",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			orders, err := app.Reports.OrphanedOrders(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return render(cmd, orders, func(w io.Writer) {
				if len(orders) == 0 {
					fmt.Fprintln(w, "no orphaned orders")
					return
				}
				for _, o := range orders {
					fmt.Fprintf(w, "%s  user=%s  total=%s  created=%s\n",
						o.ID, o.UserID, o.Total.StringFixed(2), o.CreatedAt.Format(time.RFC3339))
				}
			})
		},
	}

	cmd.Flags().IntP("limit", "n", 50, "Maximum results")

	return cmd
}

func render(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
