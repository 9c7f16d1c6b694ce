package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"noisemap/internal/aggregation/application"
	"noisemap/internal/aggregation/application/eventbus"
	analyticsapp "noisemap/internal/analytics/application"
	apihttp "noisemap/internal/api/http"
	livehttp "noisemap/internal/live/interfaces/http"
	"noisemap/internal/observability/metrics"
	sensors "noisemap/internal/sensors/domain"
	"noisemap/internal/sensors/infrastructure/yamlconfig"
	spatial "noisemap/internal/spatial/domain"
	"noisemap/internal/telemetry/interfaces/ingest"
)

var rootCmd = &cobra.Command{
	Use:   "noisemap",
	Short: "noisemap - acoustic noise field service",
	Long: `noisemap ingests decibel readings from distributed acoustic sensors and
publishes an interpolated noise field and an estimated source epicenter.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	history, err := openHistoryStore(cfg, logger)
	if err != nil {
		return err
	}
	defer history.Close()
	metrics.Init(history.db, logger)

	var locator sensors.Locator
	var layout apihttp.Layout
	if cfg.SensorsConfig != "" {
		yl, err := yamlconfig.NewLocator(cfg.SensorsConfig,
			yamlconfig.WithCacheTTL(cfg.SensorsCacheTTL),
			yamlconfig.WithLogger(logger),
		)
		if err != nil {
			logger.Printf("sensor layout: %v (unknown sensors use the default placement)", err)
		}
		locator, layout = yl, yl
	}

	bus := eventbus.NewInMemoryBus()
	store := sensors.NewStore(locator, sensors.SystemClock{})
	opts := []application.Option{
		application.WithBus(bus),
		application.WithLogger(logger),
		application.WithSettings(cfg.pipelineSettings()),
	}
	if cfg.FieldCacheSize > 0 {
		opts = append(opts, application.WithInterpolator(spatial.NewFieldCache(cfg.FieldCacheSize)))
	}
	pipeline, err := application.NewPipeline(store, opts...)
	if err != nil {
		return err
	}

	historyService, err := analyticsapp.NewHistoryService(history.store, locator, sensors.SystemClock{})
	if err != nil {
		return err
	}
	ingestHandler, err := ingest.NewHandler(pipeline, ingest.WithRepository(history.store), ingest.WithLogger(logger))
	if err != nil {
		return err
	}

	broker := livehttp.NewSSEBroker()
	hub := livehttp.NewWSHub(pipeline.CurrentSnapshot, logger)
	livehttp.Attach(bus, broker, hub)

	router, err := apihttp.NewRouter(apihttp.Deps{
		Snapshots: pipeline,
		History:   historyService,
		Layout:    layout,
		Live:      []apihttp.ClientCounter{broker, hub},
		Ingest:    ingestHandler,
		Stream:    livehttp.NewStreamHandler(broker, pipeline.CurrentSnapshot),
		WebSocket: hub,
		Metrics:   promhttp.Handler(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(router, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx := cmd.Context()
	go func() {
		<-ctx.Done()
		logger.Printf("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown error: %v", err)
		}
	}()

	logger.Printf("http listening on %s (history: %s)", cfg.HTTPAddr, history.backend)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
