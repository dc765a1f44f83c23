package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/twistin/proxyspace-hydra/internal/metrics"
	"github.com/twistin/proxyspace-hydra/internal/protocol"
)

const (
	// DefaultURL is the relay socket dialed when Options.URL is empty
	DefaultURL = "ws://127.0.0.1:8080"
	// DefaultReconnectDelay is the pause between a lost connection and the next attempt
	DefaultReconnectDelay = 3 * time.Second
)

// Options configures a Bridge
type Options struct {
	URL            string
	Endpoints      []Declaration
	ReconnectDelay time.Duration
	AutoStart      bool

	// OnStatus observes status changes. Unlike SubscribeStatus it is not
	// called with the initial status.
	OnStatus func(Status)
	// OnValue observes every endpoint update
	OnValue func(key string, value float64)

	Dialer  Dialer
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.BridgeMetrics
}

type valueListener struct {
	fn      func(float64)
	removed atomic.Bool
}

type statusListener struct {
	fn      func(Status)
	removed atomic.Bool
}

// Bridge maintains bridged endpoint values fed by a relay socket
type Bridge struct {
	url     string
	delay   time.Duration
	dialer  Dialer
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.BridgeMetrics
	onValue func(string, float64)

	mu        sync.Mutex
	endpoints []*endpoint // declaration order
	byKey     map[string]*endpoint
	byPath    map[string]*endpoint
	listeners map[string][]*valueListener
	statusFns []*statusListener
	status    Status

	shouldReconnect bool
	transport       Transport
	dialing         bool
	cancelDial      context.CancelFunc
	generation      uint64 // bumped per attempt and by Stop; stale attempts compare unequal
	timer           *clock.Timer
	timerSeq        uint64

	pending  []func()
	flushing bool
}

// New creates a bridge. It starts connecting right away when opts.AutoStart is set.
func New(opts Options) (*Bridge, error) {
	if opts.ReconnectDelay < 0 {
		return nil, fmt.Errorf("reconnect delay cannot be negative, got %v", opts.ReconnectDelay)
	}

	b := &Bridge{
		url:       opts.URL,
		delay:     opts.ReconnectDelay,
		dialer:    opts.Dialer,
		clock:     opts.Clock,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		onValue:   opts.OnValue,
		byKey:     make(map[string]*endpoint),
		byPath:    make(map[string]*endpoint),
		listeners: make(map[string][]*valueListener),
		status:    StatusIdle,
	}
	if b.url == "" {
		b.url = DefaultURL
	}
	if b.delay == 0 {
		b.delay = DefaultReconnectDelay
	}
	if b.dialer == nil {
		b.dialer = NewWebSocketDialer(10 * time.Second)
	}
	if b.clock == nil {
		b.clock = clock.New()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}

	for i, decl := range opts.Endpoints {
		ep, err := newEndpoint(decl)
		if err != nil {
			return nil, fmt.Errorf("endpoint %d: %w", i, err)
		}
		if _, exists := b.byKey[ep.key]; exists {
			return nil, fmt.Errorf("endpoint %d: %w: duplicate key %q", i, ErrInvalidEndpoint, ep.key)
		}
		if prev, exists := b.byPath[ep.path]; exists {
			b.logger.Warn("Control path declared twice, later endpoint receives its frames",
				slog.String("path", ep.path),
				slog.String("previous_key", prev.key),
				slog.String("key", ep.key),
			)
		}
		b.endpoints = append(b.endpoints, ep)
		b.byKey[ep.key] = ep
		b.byPath[ep.path] = ep
	}

	if opts.OnStatus != nil {
		b.statusFns = append(b.statusFns, &statusListener{fn: opts.OnStatus})
	}

	if opts.AutoStart {
		b.Start()
	}

	return b, nil
}

// Subscribe registers fn for updates of key and calls it once with the current
// value when the key is known. The returned function removes the subscription
// and may be called any number of times.
func (b *Bridge) Subscribe(key string, fn func(float64)) func() {
	l := &valueListener{fn: fn}

	b.mu.Lock()
	b.listeners[key] = append(b.listeners[key], l)
	if ep, ok := b.byKey[key]; ok {
		v := ep.value
		b.enqueue(func() {
			if !l.removed.Load() {
				l.fn(v)
			}
		})
	}
	b.mu.Unlock()
	b.flush()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.removed.Store(true)
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.listeners[key]
			for i, existing := range list {
				if existing == l {
					b.listeners[key] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(b.listeners[key]) == 0 {
				delete(b.listeners, key)
			}
		})
	}
}

// SubscribeStatus registers fn for status changes and calls it once with the
// current status. The returned function removes the subscription.
func (b *Bridge) SubscribeStatus(fn func(Status)) func() {
	l := &statusListener{fn: fn}

	b.mu.Lock()
	b.statusFns = append(b.statusFns, l)
	s := b.status
	b.enqueue(func() {
		if !l.removed.Load() {
			l.fn(s)
		}
	})
	b.mu.Unlock()
	b.flush()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.removed.Store(true)
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, existing := range b.statusFns {
				if existing == l {
					b.statusFns = append(b.statusFns[:i:i], b.statusFns[i+1:]...)
					break
				}
			}
		})
	}
}

// Get returns the current value of key, or fallback when the key is unknown
func (b *Bridge) Get(key string, fallback float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ep, ok := b.byKey[key]; ok {
		return ep.value
	}
	return fallback
}

// Values returns a copy of every current value by key
func (b *Bridge) Values() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]float64, len(b.endpoints))
	for _, ep := range b.endpoints {
		out[ep.key] = ep.value
	}
	return out
}

// Status returns the current connection status
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Reset restores every endpoint to its initial value and notifies subscribers
func (b *Bridge) Reset() {
	b.mu.Lock()
	for _, ep := range b.endpoints {
		ep.value = ep.initial
		b.notifyValueLocked(ep)
	}
	b.mu.Unlock()
	b.flush()
}

// Start enables reconnection and begins connecting unless a connection is
// already open or being dialed.
func (b *Bridge) Start() {
	b.mu.Lock()
	b.shouldReconnect = true
	b.connectLocked()
	b.mu.Unlock()
	b.flush()
}

// Stop disables reconnection, cancels any pending reconnect and closes the
// connection. A dial still in flight is abandoned: it never reports connected.
func (b *Bridge) Stop() {
	b.mu.Lock()
	b.shouldReconnect = false
	b.cancelTimerLocked()

	active := b.transport != nil || b.dialing
	b.generation++
	if b.cancelDial != nil {
		b.cancelDial()
		b.cancelDial = nil
	}
	b.dialing = false

	t := b.transport
	b.transport = nil
	if active {
		b.setStatusLocked(StatusDisconnected)
	}
	b.mu.Unlock()

	if t != nil {
		if err := t.Close(); err != nil {
			b.logger.Debug("Error closing bridge transport", slog.String("error", err.Error()))
		}
	}
	b.flush()
}

// HandleFrame applies one encoded frame. Frames for unknown paths are ignored.
func (b *Bridge) HandleFrame(data []byte) {
	b.handleFrame(0, data)
}

// handleFrame applies a frame read by attempt gen; gen 0 skips the staleness check
func (b *Bridge) handleFrame(gen uint64, data []byte) {
	frame, err := protocol.UnmarshalFrame(data)
	if err != nil {
		b.metrics.RecordRejected("malformed")
		b.logger.Warn("Ignoring malformed frame", slog.String("error", err.Error()))
		return
	}

	b.mu.Lock()
	if gen != 0 && gen != b.generation {
		b.mu.Unlock()
		return
	}

	ep, ok := b.byPath[frame.Path]
	if !ok {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	// Transforms are caller code and run unlocked
	value, ok := ep.extract(frame)

	b.mu.Lock()
	if gen != 0 && gen != b.generation {
		b.mu.Unlock()
		return
	}
	if !ok || !ep.apply(value) {
		b.mu.Unlock()
		b.metrics.RecordRejected("invalid_value")
		return
	}
	b.metrics.RecordUpdate(ep.key)
	b.notifyValueLocked(ep)
	b.mu.Unlock()
	b.flush()
}

// connectLocked starts a dial unless one is open or in flight
func (b *Bridge) connectLocked() {
	b.cancelTimerLocked()
	if b.transport != nil || b.dialing {
		return
	}

	b.setStatusLocked(StatusConnecting)

	b.generation++
	gen := b.generation
	ctx, cancel := context.WithCancel(context.Background())
	b.cancelDial = cancel
	b.dialing = true

	go b.dial(ctx, gen)
}

func (b *Bridge) dial(ctx context.Context, gen uint64) {
	t, err := b.dialer.Dial(ctx, b.url)

	b.mu.Lock()
	if gen != b.generation {
		// Abandoned by Stop
		b.mu.Unlock()
		if t != nil {
			_ = t.Close()
		}
		return
	}

	b.dialing = false
	if b.cancelDial != nil {
		b.cancelDial()
		b.cancelDial = nil
	}

	if err != nil {
		b.logger.Warn("Bridge connection failed",
			slog.String("url", b.url),
			slog.Duration("retry_in", b.delay),
			slog.String("error", err.Error()),
		)
		b.setStatusLocked(StatusError)
		b.scheduleReconnectLocked()
		b.mu.Unlock()
		b.flush()
		return
	}

	b.transport = t
	b.setStatusLocked(StatusConnected)
	b.mu.Unlock()
	b.flush()

	b.logger.Info("Bridge connected", slog.String("url", b.url))
	b.readLoop(gen, t)
}

// readLoop feeds frames to the endpoints until the transport fails
func (b *Bridge) readLoop(gen uint64, t Transport) {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			b.handleClose(gen, err)
			return
		}
		b.metrics.RecordFrame()
		b.handleFrame(gen, data)
	}
}

func (b *Bridge) handleClose(gen uint64, err error) {
	b.mu.Lock()
	if gen != b.generation || b.transport == nil {
		// Closed by Stop
		b.mu.Unlock()
		return
	}
	b.transport = nil

	if errors.Is(err, io.EOF) {
		b.logger.Info("Bridge connection closed", slog.String("url", b.url))
	} else {
		b.logger.Warn("Bridge connection lost",
			slog.String("url", b.url),
			slog.String("error", err.Error()),
		)
		b.setStatusLocked(StatusError)
	}
	b.setStatusLocked(StatusDisconnected)
	b.scheduleReconnectLocked()
	b.mu.Unlock()
	b.flush()
}

// scheduleReconnectLocked arms the reconnect timer. At most one is pending.
func (b *Bridge) scheduleReconnectLocked() {
	if !b.shouldReconnect || b.timer != nil {
		return
	}

	b.timerSeq++
	seq := b.timerSeq
	b.timer = b.clock.AfterFunc(b.delay, func() {
		b.fireReconnect(seq)
	})
}

func (b *Bridge) fireReconnect(seq uint64) {
	b.mu.Lock()
	if seq != b.timerSeq || b.timer == nil {
		// Cancelled after the timer fired
		b.mu.Unlock()
		return
	}
	b.timer = nil

	if b.shouldReconnect {
		b.metrics.RecordReconnect()
		b.connectLocked()
	}
	b.mu.Unlock()
	b.flush()
}

func (b *Bridge) cancelTimerLocked() {
	if b.timer == nil {
		return
	}
	b.timer.Stop()
	b.timer = nil
	b.timerSeq++
}

func (b *Bridge) setStatusLocked(next Status) {
	if b.status == next {
		return
	}
	b.status = next
	b.metrics.RecordStatus(string(next))

	for _, l := range b.statusFns {
		l := l
		b.enqueue(func() {
			if !l.removed.Load() {
				l.fn(next)
			}
		})
	}
}

func (b *Bridge) notifyValueLocked(ep *endpoint) {
	key, v := ep.key, ep.value

	for _, l := range b.listeners[key] {
		l := l
		b.enqueue(func() {
			if !l.removed.Load() {
				l.fn(v)
			}
		})
	}
	if b.onValue != nil {
		onValue := b.onValue
		b.enqueue(func() { onValue(key, v) })
	}
}

func (b *Bridge) enqueue(fn func()) {
	b.pending = append(b.pending, fn)
}

// flush runs queued notifications outside the lock, in the order they were
// queued. A call made while another flush is running leaves its events to
// that flush.
func (b *Bridge) flush() {
	b.mu.Lock()
	if b.flushing {
		b.mu.Unlock()
		return
	}
	b.flushing = true

	for len(b.pending) > 0 {
		batch := b.pending
		b.pending = nil
		b.mu.Unlock()
		for _, fn := range batch {
			fn()
		}
		b.mu.Lock()
	}

	b.flushing = false
	b.mu.Unlock()
}
