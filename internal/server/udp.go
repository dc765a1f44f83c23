package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/twistin/proxyspace-hydra/internal/config"
	"github.com/twistin/proxyspace-hydra/internal/metrics"
	"github.com/twistin/proxyspace-hydra/internal/protocol"
)

// Router consumes decoded OSC messages
type Router interface {
	Route(msg protocol.Message)
}

// UDPServer receives OSC datagrams and hands decoded messages to the router
type UDPServer struct {
	conn    *net.UDPConn
	config  *config.OSCConfig
	logger  *slog.Logger
	router  Router
	metrics *metrics.Metrics

	ctx        context.Context
	cancel     context.CancelFunc
	receiveWg  sync.WaitGroup
	processWg  sync.WaitGroup
	stopOnce   sync.Once
	packetChan chan *incomingPacket

	packetsReceived  uint64
	packetsProcessed uint64
	messagesDecoded  uint64
	decodeErrors     uint64
	packetsDropped   uint64
	mu               sync.RWMutex
}

// incomingPacket represents a received UDP datagram with metadata
type incomingPacket struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// NewUDPServer creates a new UDP server instance
func NewUDPServer(cfg *config.OSCConfig, logger *slog.Logger, router Router, m *metrics.Metrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPServer{
		config:     cfg,
		logger:     logger,
		router:     router,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		packetChan: make(chan *incomingPacket, cfg.QueueSize),
	}
}

// Start begins listening for OSC datagrams
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port)))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("OSC UDP server started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
		slog.Int("queue_size", s.config.QueueSize),
	)

	// One processor keeps routing in arrival order
	s.processWg.Add(1)
	go s.packetProcessor()

	s.receiveWg.Add(1)
	go s.receiveLoop()

	return nil
}

// Addr returns the bound listener address, or nil before Start
func (s *UDPServer) Addr() *net.UDPAddr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Stop gracefully stops the UDP server. Queued packets are routed before it returns.
func (s *UDPServer) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping OSC UDP server...")

		s.cancel()

		if s.conn != nil {
			if err := s.conn.Close(); err != nil {
				s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
			}
		}

		// The receive loop is the only sender on packetChan
		s.receiveWg.Wait()
		close(s.packetChan)
		s.processWg.Wait()

		stats := s.GetStatistics()
		s.logger.Info("OSC UDP server stopped",
			slog.Uint64("packets_received", stats.PacketsReceived),
			slog.Uint64("packets_processed", stats.PacketsProcessed),
			slog.Uint64("decode_errors", stats.DecodeErrors),
			slog.Uint64("packets_dropped", stats.PacketsDropped),
		)
	})

	return nil
}

// receiveLoop is the main datagram receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.receiveWg.Done()

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		// Read deadline lets the loop observe cancellation
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()
		s.metrics.RecordPacketReceived()

		// The buffer is reused by the next read
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		packet := &incomingPacket{
			data:       packetData,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		select {
		case s.packetChan <- packet:
			s.metrics.SetQueueSize(len(s.packetChan))
		default:
			s.mu.Lock()
			s.packetsDropped++
			s.mu.Unlock()
			s.metrics.RecordPacketDropped()
			s.logger.Warn("Packet processing queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
			)
		}
	}
}

// packetProcessor decodes and routes packets from the packet channel
func (s *UDPServer) packetProcessor() {
	defer s.processWg.Done()

	for packet := range s.packetChan {
		s.handlePacket(packet)
		s.metrics.SetQueueSize(len(s.packetChan))
	}
}

// handlePacket decodes one datagram and routes each contained message. A
// bundle with bad elements still routes the elements that decoded.
func (s *UDPServer) handlePacket(packet *incomingPacket) {
	messages, err := protocol.DecodePacket(packet.data)
	if err != nil {
		s.mu.Lock()
		s.decodeErrors++
		s.mu.Unlock()
		s.metrics.RecordDecodeError()

		s.logger.Warn("Failed to decode OSC packet",
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Int("packet_size", len(packet.data)),
			slog.Int("messages_kept", len(messages)),
			slog.String("error", err.Error()),
		)
		if len(messages) == 0 {
			return
		}
	}

	s.mu.Lock()
	s.packetsProcessed++
	s.messagesDecoded += uint64(len(messages))
	s.mu.Unlock()

	for _, msg := range messages {
		s.router.Route(msg)
	}
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		PacketsReceived:  s.packetsReceived,
		PacketsProcessed: s.packetsProcessed,
		MessagesDecoded:  s.messagesDecoded,
		DecodeErrors:     s.decodeErrors,
		PacketsDropped:   s.packetsDropped,
		QueueSize:        uint64(len(s.packetChan)),
		QueueCapacity:    uint64(cap(s.packetChan)),
	}
}

// ServerStatistics represents receive-side counters
type ServerStatistics struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsProcessed uint64 `json:"packets_processed"`
	MessagesDecoded  uint64 `json:"messages_decoded"`
	DecodeErrors     uint64 `json:"decode_errors"`
	PacketsDropped   uint64 `json:"packets_dropped"`
	QueueSize        uint64 `json:"queue_size"`
	QueueCapacity    uint64 `json:"queue_capacity"`
}
