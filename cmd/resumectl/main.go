// Command resumectl is the operator CLI for ResumeCore: schema migrations,
// plan lookups and credit ledger maintenance against the configured database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rajasatyajit/ResumeCore/config"
	"github.com/rajasatyajit/ResumeCore/internal/database"
	"github.com/rajasatyajit/ResumeCore/internal/logger"
	"github.com/rajasatyajit/ResumeCore/internal/secrets"
	"github.com/rajasatyajit/ResumeCore/internal/store"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// env holds the collaborators commands reach for; tests swap them out
type env struct {
	loadConfig  func() (*config.Config, error)
	openStore   func(ctx context.Context, cfg *config.Config) (store.Store, func(), error)
	migrateUp   func(databaseURL string) error
	migrateDown func(databaseURL string, steps int) error
}

func defaultEnv() *env {
	return &env{
		loadConfig:  config.Load,
		openStore:   openStore,
		migrateUp:   database.RunMigrations,
		migrateDown: database.RollbackMigrations,
	}
}

func main() {
	if err := newRootCmd(defaultEnv()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(e *env) *cobra.Command {
	var cfg *config.Config
	load := func() (*config.Config, error) {
		if cfg != nil {
			return cfg, nil
		}
		c, err := e.loadConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		logger.Init(c.Logging.Level, c.Logging.Format)
		cfg = c
		return cfg, nil
	}

	root := &cobra.Command{
		Use:           "resumectl",
		Short:         "ResumeCore operator tooling",
		Long:          `Manage the ResumeCore database, inspect plans and maintain user credit ledgers`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newVersionCmd(),
		newMigrateCmd(e, load),
		newPlanCmd(load),
		newBalanceCmd(e, load),
		newLedgerCmd(e, load),
		newGrantCmd(e, load),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "resumectl %s\n", Version)
			if BuildTime != "unknown" {
				fmt.Fprintf(out, "Built: %s\n", BuildTime)
			}
			if GitCommit != "unknown" {
				fmt.Fprintf(out, "Commit: %s\n", GitCommit)
			}
		},
	}
}

// openStore connects to Postgres; the CLI never falls back to memory
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	box, err := secrets.New(cfg.Secrets.Key)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store.New(db, box), db.Close, nil
}
