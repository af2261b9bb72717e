package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rajasatyajit/ResumeCore/config"
	"github.com/rajasatyajit/ResumeCore/internal/ledger"
	"github.com/rajasatyajit/ResumeCore/internal/models"
	"github.com/rajasatyajit/ResumeCore/internal/plans"
	"github.com/rajasatyajit/ResumeCore/internal/store"
)

type configLoader func() (*config.Config, error)

func newMigrateCmd(e *env, load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL(load)
			if err != nil {
				return err
			}
			if err := e.migrateUp(url); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Example: `  # Roll back the last migration
  resumectl migrate down

  # Roll back three migrations
  resumectl migrate down --steps 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			url, err := databaseURL(load)
			if err != nil {
				return err
			}
			if err := e.migrateDown(url, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

func databaseURL(load configLoader) (string, error) {
	cfg, err := load()
	if err != nil {
		return "", err
	}
	if cfg.Database.URL == "" {
		return "", fmt.Errorf("DATABASE_URL is required")
	}
	return cfg.Database.URL, nil
}

func newPlanCmd(load configLoader) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "plan [productID]",
		Short: "Show the plan a billing product unlocks",
		Example: `  # Resolve one product
  resumectl plan prod_legend

  # Print the whole product table
  resumectl plan --list`,
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			resolver, err := plans.NewResolver(cfg.Billing.Products)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !list {
				fmt.Fprintf(out, "%s -> %s\n", args[0], resolver.ResolvePlan(args[0]))
				return nil
			}
			products := resolver.Products()
			ids := make([]string, 0, len(products))
			for id := range products {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PRODUCT\tPLAN")
			for _, id := range ids {
				fmt.Fprintf(tw, "%s\t%s\n", id, products[id])
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print every configured product and its plan")
	return cmd
}

// withUser opens the store and loads the user owning externalID
func withUser(cmd *cobra.Command, e *env, load configLoader, externalID string, fn func(st store.Store, u models.User) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	st, closeStore, err := e.openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	u, err := st.GetUserByExternalID(cmd.Context(), externalID)
	if err != nil {
		return fmt.Errorf("user %s: %w", externalID, err)
	}
	return fn(st, u)
}

func newBalanceCmd(e *env, load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <externalID>",
		Short: "Show a user's plan and credit balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd, e, load, args[0], func(_ store.Store, u models.User) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "User:     %s (%s)\n", u.ExternalID, u.Email)
				fmt.Fprintf(out, "Plan:     %s\n", u.Plan)
				fmt.Fprintf(out, "Status:   %s\n", orDash(string(u.SubscriptionStatus)))
				fmt.Fprintf(out, "Credits:  %d\n", u.Credits)
				if plans.IsPayAsYouGo(u) {
					fmt.Fprintln(out, "Billing:  pay as you go")
				}
				return nil
			})
		},
	}
}

func newLedgerCmd(e *env, load configLoader) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ledger <externalID>",
		Short: "List a user's credit transactions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1")
			}
			return withUser(cmd, e, load, args[0], func(st store.Store, u models.User) error {
				txs, err := ledger.New(st).History(cmd.Context(), u.ID, limit)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(txs)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tDELTA\tREASON\tRELATED")
				for _, tx := range txs {
					fmt.Fprintf(tw, "%s\t%+d\t%s\t%s\n", tx.CreatedAt.UTC().Format(time.RFC3339), tx.Delta, tx.Reason, orDash(tx.RelatedID))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func newGrantCmd(e *env, load configLoader) *cobra.Command {
	var reason, related string
	cmd := &cobra.Command{
		Use:   "grant <externalID> <amount>",
		Short: "Add credits to a user's balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("amount %q is not an integer", args[1])
			}
			return withUser(cmd, e, load, args[0], func(st store.Store, u models.User) error {
				updated, entry, err := ledger.New(st).Grant(cmd.Context(), u.ID, amount, models.ChargeReason(reason), related)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Granted %d credits (%s) to %s; balance %d, transaction %s\n",
					amount, entry.Reason, u.ExternalID, updated.Credits, entry.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", string(models.ReasonAdminGrant), "credit reason (admin_grant or refund)")
	cmd.Flags().StringVar(&related, "related", "", "related resource id, such as a support ticket")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
