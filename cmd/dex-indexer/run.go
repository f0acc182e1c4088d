package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/dexindexer/db"
	"github.com/ethpandaops/dexindexer/metrics"
	"github.com/ethpandaops/dexindexer/services"
	"github.com/ethpandaops/dexindexer/utils"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the indexer (default)",
	RunE:  runIndexer,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runIndexer(cmd *cobra.Command, args []string) error {
	cfg, logWriter, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	defer logWriter.Dispose()

	logger.WithFields(logrus.Fields{
		"config":  configPath,
		"version": utils.GetBuildVersion(),
		"chains":  len(cfg.Chains),
	}).Printf("starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db.MustInitDB(&cfg.Database)
	defer db.MustCloseDB()
	if err := db.ApplyEmbeddedDbSchema(-2); err != nil {
		return fmt.Errorf("error initializing db schema: %w", err)
	}

	svc, err := services.InitIndexerService(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("error initializing indexer: %w", err)
	}

	if cfg.Metrics.Enabled && !cfg.Metrics.Public {
		if err := metrics.StartMetricsServer(logger.WithField("module", "metrics"), cfg.Metrics.Host, cfg.Metrics.Port); err != nil {
			return fmt.Errorf("error starting metrics server: %w", err)
		}
	}

	if cfg.Server.Enabled {
		withMetrics := cfg.Metrics.Enabled && cfg.Metrics.Public
		srv, err := services.StartStatusServer(svc, logger.WithField("module", "status"), cfg.Server.Host, cfg.Server.Port, withMetrics)
		if err != nil {
			return fmt.Errorf("error starting status server: %w", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := svc.StartService(ctx); err != nil {
		return fmt.Errorf("error starting indexer: %w", err)
	}

	sig := utils.WaitForShutdown(ctx)
	logger.Printf("received %v, waiting for running cycles", sig)
	svc.StopService()
	logger.Println("exiting...")
	return nil
}
