package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// State is the lifecycle state of a session
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the subset of *websocket.Conn used by a session
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Session is one live socket connection. It carries no application state.
type Session struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	conn  Conn
	send  chan []byte
	done  chan struct{}
	state atomic.Int32

	framesSent    atomic.Uint64
	framesDropped atomic.Uint64

	closeOnce sync.Once
	onClose   func(*Session)
}

// SessionInfo contains session information for monitoring
type SessionInfo struct {
	ID            string    `json:"id"`
	RemoteAddr    string    `json:"remote_addr"`
	State         string    `json:"state"`
	ConnectedAt   time.Time `json:"connected_at"`
	FramesSent    uint64    `json:"frames_sent"`
	FramesDropped uint64    `json:"frames_dropped"`
	QueueLength   int       `json:"queue_length"`
}

func newSession(id, remoteAddr string, conn Conn, queueSize int) *Session {
	s := &Session{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, queueSize),
		done:        make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// State returns the current session state
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// markOpen moves a connecting session to open. A session closed in the
// meantime stays closed.
func (s *Session) markOpen() bool {
	return s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// enqueue queues a frame without blocking. It reports false when the session
// is gone or its queue is full.
func (s *Session) enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- data:
		return true
	default:
		s.framesDropped.Add(1)
		return false
	}
}

// Close closes the connection once. Safe to call from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		close(s.done)
		_ = s.conn.Close()
		s.setState(StateClosed)
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// writePump drains the send queue and keeps the connection alive with pings
func (s *Session) writePump(writeTimeout, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Close()

	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			s.framesSent.Add(1)
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client payloads and detects disconnects
func (s *Session) readPump(pongTimeout time.Duration) {
	defer s.Close()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Info returns a monitoring snapshot of the session
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:            s.ID,
		RemoteAddr:    s.RemoteAddr,
		State:         s.State().String(),
		ConnectedAt:   s.ConnectedAt,
		FramesSent:    s.framesSent.Load(),
		FramesDropped: s.framesDropped.Load(),
		QueueLength:   len(s.send),
	}
}
