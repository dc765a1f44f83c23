package mirror

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twistin/proxyspace-hydra/internal/protocol"
)

var (
	// ErrNotOpen is returned by Send before Open succeeded
	ErrNotOpen = errors.New("mirror client not open")
	// ErrClosed is returned by Send after Close
	ErrClosed = errors.New("mirror client closed")
)

// Config contains mirror peer configuration
type Config struct {
	Host         string
	Port         int
	WriteTimeout time.Duration
}

// Client is an OSC UDP sender bound to one peer
type Client struct {
	config Config
	logger *slog.Logger

	conn   *net.UDPConn
	closed bool
	mu     sync.Mutex

	sent   atomic.Uint64
	failed atomic.Uint64
}

// Statistics represents mirror counters
type Statistics struct {
	Peer   string `json:"peer"`
	Open   bool   `json:"open"`
	Sent   uint64 `json:"sent"`
	Failed uint64 `json:"failed"`
}

// New creates a mirror client. Call Open before sending.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 100 * time.Millisecond
	}
	return &Client{
		config: cfg,
		logger: logger,
	}
}

// Peer returns the host:port the client sends to
func (c *Client) Peer() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

// Open resolves the peer and creates the outbound socket. The peer does not
// need to be running: UDP dialing only binds a local port.
func (c *Client) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.conn != nil {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp", c.Peer())
	if err != nil {
		return fmt.Errorf("failed to resolve mirror peer %s: %w", c.Peer(), err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("failed to open mirror socket to %s: %w", c.Peer(), err)
	}
	c.conn = conn

	c.logger.Info("Mirror client ready",
		slog.String("peer", c.Peer()),
		slog.String("local_addr", conn.LocalAddr().String()),
	)
	return nil
}

// Send encodes one message and writes it to the peer
func (c *Client) Send(path string, args []protocol.TypedArg) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.conn == nil {
		return ErrNotOpen
	}

	data, err := protocol.EncodeMessage(path, args)
	if err != nil {
		c.failed.Add(1)
		return err
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if _, err := c.conn.Write(data); err != nil {
		c.failed.Add(1)
		return fmt.Errorf("failed to write to mirror peer %s: %w", c.Peer(), err)
	}

	c.sent.Add(1)
	return nil
}

// Close releases the socket. Subsequent sends return ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// GetStatistics returns current mirror statistics
func (c *Client) GetStatistics() Statistics {
	c.mu.Lock()
	open := c.conn != nil
	c.mu.Unlock()

	return Statistics{
		Peer:   c.Peer(),
		Open:   open,
		Sent:   c.sent.Load(),
		Failed: c.failed.Load(),
	}
}
