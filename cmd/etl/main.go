package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/adapter/csvlog"
	httpadapter "github.com/jurlina/remote-sensing-2-hail-events/internal/adapter/http"
	kafkaadapter "github.com/jurlina/remote-sensing-2-hail-events/internal/adapter/kafka"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/adapter/odim"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/config"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/observability"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/pipeline"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/projection"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	loader := odim.NewLoader(cfg.ProductDir, cfg.ProductPrefix, logger).
		WithMaxCells(max(cfg.Geometry.Cells(), odim.DefaultMaxCells))
	store := csvlog.NewStore(cfg.EventLogPath, logger)
	grids := projection.NewCache(cfg.GridCacheSize)

	var (
		source    pipeline.ProductSource
		publisher pipeline.EventPublisher
		closers   []func() error
	)
	if cfg.KafkaEnabled {
		reader := kafkaadapter.NewReader(cfg, logger)
		writer := kafkaadapter.NewWriter(cfg, logger)
		source, publisher = reader, writer
		closers = append(closers, reader.Close, writer.Close)
		logger.Info("kafka enabled", "source_topic", cfg.KafkaSourceTopic, "sink_topic", cfg.KafkaSinkTopic)
	} else {
		source = odim.NewPoller(loader, cfg.ProductPollInterval, true, nil, logger)
		logger.Info("polling product directory", "dir", cfg.ProductDir, "interval", cfg.ProductPollInterval)
	}

	processor, err := pipeline.NewProcessor(loader, grids, store, pipeline.ProcessorConfig{
		Thresholds: cfg.Thresholds,
		Geometry:   cfg.Geometry,
		Publisher:  publisher,
	}, logger, metrics)
	if err != nil {
		logger.Error("invalid detection settings", "error", err)
		os.Exit(1)
	}
	if _, err := projection.NewProjector(cfg.Geometry); err != nil {
		logger.Error("default grid geometry is inconsistent", "error", err)
		os.Exit(1)
	}

	p := pipeline.New(source, processor, logger, metrics, cfg.BatchSize)
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Project the configured grid up front so the first product does not pay for it.
	go func() {
		grid, _, err := grids.Get(cfg.Geometry)
		if err != nil {
			logger.Error("project default grid", "error", err)
			return
		}
		c := grid.Corners()
		logger.Info("grid ready",
			"upper_left", c.UpperLeft, "upper_right", c.UpperRight,
			"lower_left", c.LowerLeft, "lower_right", c.LowerRight)
	}()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	closeAfterPipeline(shutdownCtx, pipelineDone, closers, logger)

	logger.Info("shutdown complete")
}

// closeAfterPipeline waits for the pipeline to return, or for ctx to expire,
// and then runs closers in order. The product in flight finishes its append
// and commit before the consumer and producer go away.
func closeAfterPipeline(ctx context.Context, done <-chan struct{}, closers []func() error, logger *slog.Logger) {
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("pipeline did not stop before the shutdown timeout")
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("kafka close error", "error", err)
		}
	}
}
