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

	"github.com/twistin/proxyspace-hydra/internal/broadcast"
	"github.com/twistin/proxyspace-hydra/internal/config"
	"github.com/twistin/proxyspace-hydra/internal/logging"
	"github.com/twistin/proxyspace-hydra/internal/metrics"
	"github.com/twistin/proxyspace-hydra/internal/mirror"
	"github.com/twistin/proxyspace-hydra/internal/relay"
	"github.com/twistin/proxyspace-hydra/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "proxyspace-hydra"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file (empty for defaults and environment only)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Logging, cfg.Relay.Debug)
	defer logCloser.Close()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("osc_host", cfg.OSC.Host),
		slog.Int("osc_port", cfg.OSC.Port),
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("ws_path", cfg.HTTP.WSPath),
		slog.Bool("mirror_enabled", cfg.Mirror.Enabled),
		slog.String("mirror_host", cfg.Mirror.Host),
		slog.Int("mirror_port", cfg.Mirror.Port),
		slog.Any("allowed_addresses", cfg.Relay.AllowedAddresses),
		slog.Bool("debug", cfg.Relay.Debug),
	)

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	hub := broadcast.NewHub(broadcast.HubConfig{
		SendQueueSize: cfg.HTTP.SendQueueSize,
		WriteTimeout:  cfg.HTTP.GetWriteTimeout(),
		PingInterval:  cfg.HTTP.GetPingInterval(),
		MaxSessions:   cfg.HTTP.MaxSessions,
	}, logger, appMetrics)

	// A missing peer is not fatal: the relay keeps broadcasting without it
	var mirrorClient *mirror.Client
	var mirrorSink relay.MirrorSink
	if cfg.Mirror.Enabled {
		mirrorClient = mirror.New(mirror.Config{
			Host:         cfg.Mirror.Host,
			Port:         cfg.Mirror.Port,
			WriteTimeout: cfg.Mirror.GetWriteTimeout(),
		}, logger)
		if err := mirrorClient.Open(); err != nil {
			logger.Error("Mirror client unavailable, continuing without it",
				slog.String("peer", mirrorClient.Peer()),
				slog.String("error", err.Error()),
			)
		}
		mirrorSink = mirrorClient
	}

	pipeline := relay.NewPipeline(relay.PipelineConfig{
		Whitelist: relay.NewWhitelist(cfg.Relay.AllowedAddresses...),
		Debug:     cfg.Relay.Debug,
	}, hub, mirrorSink, logger, appMetrics)

	udpServer := server.NewUDPServer(&cfg.OSC, logger, pipeline, appMetrics)

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Address: cfg.HTTP.Address,
		Port:    cfg.HTTP.Port,
		WSPath:  cfg.HTTP.WSPath,
	}, logger, cfg, server.Components{
		Hub:       hub,
		UDPServer: udpServer,
		Pipeline:  pipeline,
		Mirror:    mirrorClient,
	}, appMetrics)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := udpServer.Start(); err != nil {
		logger.Error("Failed to start OSC UDP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Service started successfully, waiting for signals...")

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	logger.Info("Starting graceful shutdown...")

	// Stop intake first so nothing is routed into closed sinks
	if err := udpServer.Stop(); err != nil {
		logger.Error("Error stopping OSC UDP server", slog.String("error", err.Error()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	hub.Close()

	if mirrorClient != nil {
		if err := mirrorClient.Close(); err != nil {
			logger.Error("Error closing mirror client", slog.String("error", err.Error()))
		}
	}

	udpStats := udpServer.GetStatistics()
	relayStats := pipeline.GetStatistics()
	logger.Info("Final relay statistics",
		slog.Uint64("packets_received", udpStats.PacketsReceived),
		slog.Uint64("decode_errors", udpStats.DecodeErrors),
		slog.Uint64("packets_dropped", udpStats.PacketsDropped),
		slog.Uint64("messages_routed", relayStats.MessagesRouted),
		slog.Uint64("messages_filtered", relayStats.MessagesFiltered),
		slog.Uint64("mirror_failures", relayStats.MirrorFailures),
	)

	logger.Info("Service stopped")
}
