package broadcast

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/twistin/proxyspace-hydra/internal/metrics"
)

// HubConfig contains session hub configuration
type HubConfig struct {
	SendQueueSize   int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	PongTimeout     time.Duration
	MaxSessions     int // 0 means unlimited
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultHubConfig returns the defaults used when fields are left zero
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendQueueSize:   64,
		WriteTimeout:    10 * time.Second,
		PingInterval:    30 * time.Second,
		PongTimeout:     60 * time.Second,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
}

// Hub tracks live sessions and fans frames out to them
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metrics.Metrics

	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewHub creates a session hub
func NewHub(cfg HubConfig, logger *slog.Logger, m *metrics.Metrics) *Hub {
	defaults := DefaultHubConfig()
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = defaults.SendQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		cfg.PongTimeout = 2 * cfg.PingInterval
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaults.ReadBufferSize
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = defaults.WriteBufferSize
	}

	return &Hub{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// Browser pages are served from other origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:   logger,
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// ServeHTTP upgrades the request and registers a new session
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.config.MaxSessions > 0 && h.SessionCount() >= h.config.MaxSessions {
		h.logger.Warn("Rejecting socket session, limit reached",
			slog.String("remote_addr", r.RemoteAddr),
			slog.Int("max_sessions", h.config.MaxSessions),
		)
		http.Error(w, "Too many sessions", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		h.logger.Warn("Socket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	session := newSession(uuid.NewString(), r.RemoteAddr, conn, h.config.SendQueueSize)
	h.add(session)
	h.start(session)
}

// add registers a session with the hub
func (h *Hub) add(s *Session) {
	s.onClose = h.remove

	h.mu.Lock()
	h.sessions[s.ID] = s
	count := len(h.sessions)
	h.mu.Unlock()

	h.metrics.RecordSessionOpened(count)
	h.logger.Info("Socket client connected",
		slog.String("session_id", s.ID),
		slog.String("remote_addr", s.RemoteAddr),
		slog.Int("active_sessions", count),
	)
}

// start launches the session pumps and marks it open
func (h *Hub) start(s *Session) {
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		s.writePump(h.config.WriteTimeout, h.config.PingInterval)
	}()
	go func() {
		defer h.wg.Done()
		s.readPump(h.config.PongTimeout)
	}()
	s.markOpen()
}

// remove unregisters a closed session
func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	_, exists := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	count := len(h.sessions)
	h.mu.Unlock()

	if !exists {
		return
	}

	h.metrics.RecordSessionClosed(count)
	h.logger.Info("Socket client disconnected",
		slog.String("session_id", s.ID),
		slog.Duration("connected_for", time.Since(s.ConnectedAt)),
		slog.Int("active_sessions", count),
	)
}

// Broadcast queues data to every open session and returns how many accepted it.
// Sessions that are connecting, closing or closed are skipped, as are sessions
// whose queue is full.
func (h *Hub) Broadcast(data []byte) int {
	delivered := 0
	for _, s := range h.snapshot() {
		if s.State() != StateOpen {
			h.metrics.RecordBroadcastSkip("not_open")
			continue
		}
		if !s.enqueue(data) {
			h.metrics.RecordBroadcastSkip("queue_full")
			h.logger.Debug("Socket session queue full, frame skipped",
				slog.String("session_id", s.ID),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// snapshot copies the session list so sends happen without holding the lock
func (h *Hub) snapshot() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		list = append(list, s)
	}
	return list
}

// SessionCount returns the number of registered sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Sessions returns monitoring info for all sessions, oldest first
func (h *Hub) Sessions() []SessionInfo {
	list := h.snapshot()
	infos := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// Close closes every session and waits for their goroutines to exit
func (h *Hub) Close() {
	for _, s := range h.snapshot() {
		s.Close()
	}
	h.wg.Wait()
	h.logger.Info("Socket hub closed")
}
