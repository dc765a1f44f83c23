package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/twistin/proxyspace-hydra/internal/broadcast"
	"github.com/twistin/proxyspace-hydra/internal/config"
	"github.com/twistin/proxyspace-hydra/internal/metrics"
	"github.com/twistin/proxyspace-hydra/internal/mirror"
	"github.com/twistin/proxyspace-hydra/internal/relay"
)

const (
	serviceName    = "proxyspace-hydra"
	serviceVersion = "1.0.0"
)

// HTTPServer serves socket upgrades plus monitoring endpoints on one port
type HTTPServer struct {
	server    *http.Server
	handler   http.Handler
	logger    *slog.Logger
	config    *config.Config
	hub       *broadcast.Hub
	udpServer *UDPServer
	pipeline  *relay.Pipeline
	mirror    *mirror.Client
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer

	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Address string
	Port    int
	WSPath  string
}

// Components are the relay parts reported on by the HTTP endpoints.
// Mirror is nil when mirroring is disabled. A nil Gatherer uses the default registry.
type Components struct {
	Hub       *broadcast.Hub
	UDPServer *UDPServer
	Pipeline  *relay.Pipeline
	Mirror    *mirror.Client
	Gatherer  prometheus.Gatherer
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger, appConfig *config.Config, c Components, m *metrics.Metrics) *HTTPServer {
	gatherer := c.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		hub:       c.Hub,
		udpServer: c.UDPServer,
		pipeline:  c.Pipeline,
		mirror:    c.Mirror,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux, cfg.WSPath)
	h.handler = withCORS(mux)

	h.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		Handler:      h.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the root handler, for use with httptest servers
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux, wsPath string) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// Upgrades bypass withMetrics: the wrapper cannot be hijacked
	if wsPath != "" && wsPath != "/" {
		mux.HandleFunc(wsPath, h.upgradeOr(h.withMetrics(wsPath, handleUpgradeRequired)))
	}
	mux.HandleFunc("/", h.upgradeOr(h.withMetrics("/", h.handleRoot)))
}

// upgradeOr hands socket upgrade requests to the hub and everything else to next
func (h *HTTPServer) upgradeOr(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			h.hub.ServeHTTP(w, r)
			return
		}
		next(w, r)
	}
}

// withCORS sets permissive CORS headers and answers preflight requests
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Range")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	listener, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("HTTP server started",
		slog.String("address", listener.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server. Hijacked socket sessions are closed by the hub.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	udpStats := h.udpServer.GetStatistics()

	mirrorStatus := map[string]any{"status": "disabled"}
	if h.mirror != nil {
		stats := h.mirror.GetStatistics()
		status := "not_open"
		if stats.Open {
			status = "running"
		}
		mirrorStatus = map[string]any{
			"status": status,
			"peer":   stats.Peer,
			"sent":   stats.Sent,
			"failed": stats.Failed,
		}
	}

	writeJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]any{
			"osc_server": map[string]any{
				"status":           "running",
				"packets_received": udpStats.PacketsReceived,
				"decode_errors":    udpStats.DecodeErrors,
				"queue_size":       udpStats.QueueSize,
			},
			"socket_hub": map[string]any{
				"status":          "running",
				"active_sessions": h.hub.SessionCount(),
			},
			"mirror": mirrorStatus,
		},
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"udp":       h.udpServer.GetStatistics(),
		"relay":     h.pipeline.GetStatistics(),
		"sessions": map[string]any{
			"active_count": h.hub.SessionCount(),
		},
	}
	if h.mirror != nil {
		stats["mirror"] = h.mirror.GetStatistics()
	}

	writeJSON(w, stats)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.hub.Sessions()
	writeJSON(w, map[string]any{
		"total_sessions": len(sessions),
		"timestamp":      time.Now().UTC(),
		"sessions":       sessions,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	allowed := h.config.Relay.AllowedAddresses
	if allowed == nil {
		allowed = []string{}
	}

	writeJSON(w, map[string]any{
		"osc": map[string]any{
			"host":        h.config.OSC.Host,
			"port":        h.config.OSC.Port,
			"buffer_size": h.config.OSC.BufferSize,
			"queue_size":  h.config.OSC.QueueSize,
		},
		"http": map[string]any{
			"address":         h.config.HTTP.Address,
			"port":            h.config.HTTP.Port,
			"ws_path":         h.config.HTTP.WSPath,
			"send_queue_size": h.config.HTTP.SendQueueSize,
			"max_sessions":    h.config.HTTP.MaxSessions,
		},
		"mirror": map[string]any{
			"enabled": h.config.Mirror.Enabled,
			"host":    h.config.Mirror.Host,
			"port":    h.config.Mirror.Port,
		},
		"relay": map[string]any{
			"debug":             h.config.Relay.Debug,
			"allowed_addresses": allowed,
		},
		"logging": map[string]any{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	})
}

// handleUpgradeRequired answers plain requests on the socket path
func handleUpgradeRequired(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "WebSocket upgrade required", http.StatusUpgradeRequired)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	endpoints := map[string]any{
		"GET /":         "API documentation, or socket upgrade",
		"GET /health":   "Service health check",
		"GET /stats":    "Relay statistics",
		"GET /sessions": "Connected socket sessions",
		"GET /config":   "Relay configuration",
		"GET /metrics":  "Prometheus metrics",
	}
	if path := h.config.HTTP.WSPath; path != "" && path != "/" {
		endpoints["GET "+path] = "Socket upgrade for relayed frames"
	}

	writeJSON(w, map[string]any{
		"service":   serviceName,
		"version":   serviceVersion,
		"endpoints": endpoints,
		"timestamp": time.Now().UTC(),
	})
}
