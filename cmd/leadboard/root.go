package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"leadboard/internal/client"
	"leadboard/internal/comparison"
	"leadboard/internal/config"
	"leadboard/internal/export"
	"leadboard/internal/handlers"
	"leadboard/internal/ingest"
	"leadboard/internal/metrics"
	"leadboard/internal/storage"
	"leadboard/internal/transformer"
)

// app carries the components every subcommand shares.
type app struct {
	config    *config.Config
	logger    *logrus.Logger
	store     *storage.JSONStore
	telemetry *handlers.Telemetry
	importer  *ingest.Importer
	evaluator *comparison.Evaluator
	exporter  *export.Exporter
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var dataDir, logLevel string

	root := &cobra.Command{
		Use:   "leadboard",
		Short: "Lead tracking dashboard",
		Long: `leadboard imports lead spreadsheets, allocates advertising expenses
across date ranges and reports conversion metrics for saved comparisons.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			return a.init(cfg)
		},
	}

	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding the JSON collections (default $DATA_DIR or ./data)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd(a))
	root.AddCommand(importCmd(a))
	root.AddCommand(reportCmd(a))
	root.AddCommand(expensesCmd(a))
	return root
}

func (a *app) init(cfg *config.Config) error {
	logger := cfg.NewLogger()

	store, err := storage.NewJSONStore(cfg.DataDir, cfg.BackupKeep, logger)
	if err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}

	a.config = cfg
	a.logger = logger
	a.store = store
	a.telemetry = handlers.NewTelemetry()
	a.importer = ingest.NewImporter(transformer.New(), store, a.telemetry, logger)
	a.evaluator = comparison.NewEvaluator(metrics.NewCalculator(cfg.RevenuePerContract))
	a.exporter = export.NewExporter(cfg.SinkSecret, client.NewHTTPClient(cfg, logger), logger)
	return nil
}
