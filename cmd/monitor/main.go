package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/twistin/proxyspace-hydra/internal/bridge"
	"github.com/twistin/proxyspace-hydra/internal/config"
	"github.com/twistin/proxyspace-hydra/internal/logging"
	"github.com/twistin/proxyspace-hydra/internal/metrics"
	"github.com/twistin/proxyspace-hydra/internal/server"
)

const defaultConfigPath = "configs/monitor.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to monitor configuration file")
	flag.Parse()

	cfg, err := config.LoadMonitor(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Logging, false)
	defer logCloser.Close()

	declarations := make([]bridge.Declaration, 0, len(cfg.Bridge.Endpoints))
	for _, ep := range cfg.Bridge.Endpoints {
		declarations = append(declarations, bridge.Declaration{
			Path:      ep.Path,
			Key:       ep.Key,
			Initial:   ep.Initial,
			Smoothing: ep.Smoothing,
			Min:       ep.Min,
			Max:       ep.Max,
		})
	}

	// Metrics are collected only when something serves them
	var bridgeMetrics *metrics.BridgeMetrics
	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled() {
		bridgeMetrics = metrics.NewBridgeMetrics(prometheus.DefaultRegisterer)
		metricsServer = server.NewMetricsServer(cfg.Metrics.Address, prometheus.DefaultGatherer, logger)
		if err := metricsServer.Start(); err != nil {
			logger.Error("Failed to start metrics server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	b, err := bridge.New(bridge.Options{
		URL:            cfg.Bridge.URL,
		Endpoints:      declarations,
		ReconnectDelay: cfg.Bridge.GetReconnectDelay(),
		OnStatus: func(s bridge.Status) {
			logger.Info("Bridge status changed", slog.String("status", s.String()))
		},
		OnValue: func(key string, value float64) {
			logger.Info("Value updated", slog.String("key", key), slog.Float64("value", value))
		},
		Logger:  logger,
		Metrics: bridgeMetrics,
	})
	if err != nil {
		logger.Error("Failed to create bridge", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Monitor starting",
		slog.String("url", cfg.Bridge.URL),
		slog.Int("endpoints", len(declarations)),
		slog.Duration("reconnect_delay", cfg.Bridge.GetReconnectDelay()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b.Start()
	<-ctx.Done()
	b.Stop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
		}
		cancel()
	}

	logger.Info("Monitor stopped", slog.Any("values", b.Values()))
}
