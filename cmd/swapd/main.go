package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/archive"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/common"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/config"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/db"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/dispatch"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/handlers"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/ingest"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/logger"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/metrics"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/migrations"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/quote"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/status"
	"github.com/chainflip-io/chainflip-backend-sub000/pkg/api"
)

const version = "1.0.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "swapd",
	Short: "swapd - cross-chain swap indexer and quote aggregator",
	Long: `swapd ingests swap lifecycle events from a chain archive into a local
store, serves swap status over HTTP and aggregates quotes across connected
market-maker providers and the chain's broker interface.`,
	Version: version,
	RunE:    runSwapd,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the event names the ingester subscribes to",
	Run: func(cmd *cobra.Command, args []string) {
		table := dispatch.Build(handlers.NewRegistry(nil).Groups())
		for _, name := range table.Names() {
			fmt.Println(name)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(eventsCmd)
}

func runSwapd(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// An in-flight block finishes applying before the ingester observes the
	// cancelled context, so shutdown never leaves a half-applied block.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	var logging logger.ComponentLevels
	if cfg.Logging != nil {
		logging = cfg.Logging
	}
	log := logger.NewComponentLoggerFromConfig(common.ComponentIngester, logging)

	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(ctx); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
		log.Infof("Metrics server started on %s%s", cfg.Metrics.ListenAddress, cfg.Metrics.Path)
	}

	log.Info("Running database migrations...")
	if err := migrations.RunMigrations(cfg.Ingester.DB.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewSQLiteDBFromConfig(cfg.Ingester.DB)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer database.Close()

	archiveClient := archive.NewClient(
		cfg.Ingester.ArchiveURL,
		cfg.Ingester.Retry,
		logger.NewComponentLoggerFromConfig(common.ComponentArchive, logging),
	)

	feeCache := handlers.NewEgressFeeCache(archiveClient, cfg.Quoter.EnvironmentCacheTTL.Duration)
	registry := handlers.NewRegistry(feeCache)
	table := dispatch.Build(registry.Groups())

	ingester := ingest.New(
		database,
		archiveClient,
		table,
		cfg.Ingester.BatchSize,
		cfg.Ingester.PollInterval.Duration,
		log,
	)

	hub := quote.NewHub(logger.NewComponentLoggerFromConfig(common.ComponentQuoteHub, logging))
	broker := archive.NewBroker(
		cfg.Quoter.BrokerURL,
		logger.NewComponentLoggerFromConfig(common.ComponentAggregator, logging),
	)
	aggregator := quote.NewAggregator(
		hub,
		broker,
		cfg.Quoter.ResponseTimeout.Duration,
		logger.NewComponentLoggerFromConfig(common.ComponentAggregator, logging),
	)

	resolver := status.NewResolver(
		database,
		archiveClient,
		archiveClient,
		logger.NewComponentLoggerFromConfig(common.ComponentStatus, logging),
	)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.API != nil && cfg.API.Enabled {
		apiLog := logger.NewComponentLoggerFromConfig(common.ComponentAPI, logging)
		handler := api.NewHandler(database, resolver, broker, aggregator, hub, cfg.API, apiLog)
		apiServer := api.NewServer(cfg.API, handler, apiLog)
		g.Go(func() error {
			return apiServer.Start(ctx)
		})
	}

	log.Info("Starting swap ingester...")
	g.Go(func() error {
		return ingester.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("swapd failed: %w", err)
	}

	log.Info("swapd stopped successfully")
	return nil
}
