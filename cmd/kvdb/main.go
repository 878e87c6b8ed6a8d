package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/kvdb/kvdb/internal/api"
	"github.com/kvdb/kvdb/internal/config"
	"github.com/kvdb/kvdb/internal/logger"
	"github.com/kvdb/kvdb/internal/metrics"
	"github.com/kvdb/kvdb/internal/storage/factory"
	"github.com/kvdb/kvdb/internal/tracing"
	"github.com/kvdb/kvdb/internal/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "kvdb: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 1 && (args[0] == "-version" || args[0] == "--version") {
		fmt.Println(version.String())
		return nil
	}

	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	if err := logger.Init(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		Rotation:   cfg.Logging.Rotation,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	gin.SetMode(cfg.Server.Mode)

	info := version.Get()
	log.Info().
		Str("version", info.Version).
		Str("commit", info.GitCommit).
		Str("go", info.GoVersion).
		Interface("config", cfg.Redacted()).
		Msg("Starting kvdb")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingConfig := tracing.DefaultTracingConfig()
	tracingConfig.Enabled = cfg.Tracing.Enabled
	tracingConfig.Endpoint = cfg.Tracing.Endpoint
	tracingConfig.ExporterType = cfg.Tracing.Exporter
	tracingConfig.Insecure = cfg.Tracing.Insecure
	tracingConfig.ServiceVersion = info.Version
	tracer, err := tracing.NewProvider(tracingConfig)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	var collector *metrics.Collector
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		collector = metrics.NewProcessCollector()
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, collector.GetRegistry())
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	table, err := factory.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	server, err := api.NewServer(cfg, table, collector)
	if err != nil {
		_ = table.Close()
		return err
	}
	if err := server.Start(ctx); err != nil {
		_ = table.Close()
		return fmt.Errorf("start server: %w", err)
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Error stopping server")
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Error stopping metrics server")
		}
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Error flushing traces")
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
