package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/bizledger/internal/config"
	"github.com/alfredjeanlab/bizledger/internal/events"
	"github.com/alfredjeanlab/bizledger/internal/model"
	"github.com/alfredjeanlab/bizledger/internal/store"
	"github.com/alfredjeanlab/bizledger/internal/store/docstore"
	"github.com/alfredjeanlab/bizledger/internal/store/sqlstore"
	ledgersync "github.com/alfredjeanlab/bizledger/internal/sync"
)

var (
	jsonOutput bool
	verbose    bool

	cfg       *config.Config
	logger    *slog.Logger
	publisher events.Publisher
	ctrl      *ledgersync.Controller
)

// noLedger marks commands that must not open the ledger.
const noLedger = "no-ledger"

var rootCmd = &cobra.Command{
	Use:           "ledger <command>",
	Short:         "Local business ledger: sales, inventory, suppliers, customers, expenses, returns",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg)
		if err != nil {
			return err
		}
		if cmd.Annotations[noLedger] == "true" {
			return nil
		}
		publisher = newPublisher()
		ctrl, err = openLedger(cmd.Context())
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if ctrl != nil {
			if err := ctrl.Close(); err != nil {
				logger.Error("error closing ledger", "err", err)
			}
		}
		if publisher != nil {
			publisher.Close()
		}
	},
}

func newLogger(c *config.Config) (*slog.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// openLedger builds the controller from cfg and hydrates the Ledger.
func openLedger(ctx context.Context) (*ledgersync.Controller, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	var primary store.Primary
	if !cfg.PrimaryDisabled() {
		s, err := sqlstore.New(cfg.DatabaseURL)
		if err != nil {
			logger.Warn("primary backend unavailable", "err", err)
		} else {
			primary = s
		}
	}

	c := ledgersync.NewController(model.NewLedger(), primary, docstore.New(cfg.DataDir), publisher, logger)
	c.Initialize(ctx)
	return c, nil
}

// newPublisher connects to NATS when configured. Events are optional, so a
// failed connection only logs.
func newPublisher() events.Publisher {
	if cfg.NATSURL == "" {
		return &events.NoopPublisher{}
	}
	pub, err := events.NewNATSPublisher(cfg.NATSURL)
	if err != nil {
		logger.Warn("events disabled", "err", err)
		return &events.NoopPublisher{}
	}
	logger.Debug("events enabled", "nats_url", cfg.NATSURL)
	return pub
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Data:"},
		&cobra.Group{ID: "transfer", Title: "Import & Export:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Data
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(settingsCmd)

	// Import & Export
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	// System
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
