package relay

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/twistin/proxyspace-hydra/internal/metrics"
	"github.com/twistin/proxyspace-hydra/internal/protocol"
)

// Broadcaster delivers an encoded frame to every open socket session.
// It returns the number of sessions the frame was queued to.
type Broadcaster interface {
	Broadcast(data []byte) int
}

// MirrorSink forwards a re-tagged message to the fixed mirror peer
type MirrorSink interface {
	Send(path string, args []protocol.TypedArg) error
}

// PipelineConfig holds routing configuration
type PipelineConfig struct {
	Whitelist Whitelist
	Debug     bool
}

// Pipeline filters, normalizes and fans out inbound OSC messages
type Pipeline struct {
	whitelist   Whitelist
	debug       bool
	broadcaster Broadcaster
	mirror      MirrorSink
	logger      *slog.Logger
	metrics     *metrics.Metrics

	routed         atomic.Uint64
	filtered       atomic.Uint64
	broadcastFails atomic.Uint64
	mirrorFails    atomic.Uint64
}

// PipelineStatistics represents routing counters
type PipelineStatistics struct {
	MessagesRouted   uint64 `json:"messages_routed"`
	MessagesFiltered uint64 `json:"messages_filtered"`
	BroadcastErrors  uint64 `json:"broadcast_errors"`
	MirrorFailures   uint64 `json:"mirror_failures"`
	WhitelistSize    int    `json:"whitelist_size"`
}

// NewPipeline creates a routing pipeline. A nil mirror disables mirroring.
func NewPipeline(cfg PipelineConfig, broadcaster Broadcaster, mirror MirrorSink, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		whitelist:   cfg.Whitelist,
		debug:       cfg.Debug,
		broadcaster: broadcaster,
		mirror:      mirror,
		logger:      logger,
		metrics:     m,
	}
}

// Route handles one inbound message. Nothing is returned: filtered messages are
// dropped silently and sink failures are handled inside their own boundary.
func (p *Pipeline) Route(msg protocol.Message) {
	if msg.Path == "" || !p.whitelist.Allows(msg.Path) {
		p.filtered.Add(1)
		p.metrics.RecordFiltered()
		return
	}

	p.routed.Add(1)
	p.metrics.RecordRouted()

	args := Normalize(msg.Args)
	value := PrimaryValue(args)

	if p.debug {
		p.logger.Debug("OSC message routed",
			slog.String("path", msg.Path),
			slog.Any("args", args),
			slog.Any("value", value),
		)
	}

	p.broadcast(msg.Path, args, value)
	p.forward(msg.Path, args)
}

// broadcast encodes the frame and hands it to the socket sessions
func (p *Pipeline) broadcast(path string, args []any, value *float64) {
	if p.broadcaster == nil {
		return
	}

	data, err := protocol.NewFrame(path, args, value).Marshal()
	if err != nil {
		p.broadcastFails.Add(1)
		p.metrics.RecordBroadcastError()
		p.logger.Warn("Failed to encode broadcast frame",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}

	delivered := p.broadcaster.Broadcast(data)
	p.metrics.RecordBroadcast(delivered)
}

// forward sends the re-tagged message to the mirror peer. Errors and panics
// stop here.
func (p *Pipeline) forward(path string, args []any) {
	if p.mirror == nil {
		return
	}

	if err := p.sendMirror(path, Retag(args)); err != nil {
		p.mirrorFails.Add(1)
		p.metrics.RecordMirrorFailure()
		p.logger.Error("Failed to forward message to mirror peer",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}

	p.metrics.RecordMirrorSent()
	if p.debug {
		p.logger.Debug("OSC message mirrored", slog.String("path", path), slog.Any("args", args))
	}
}

func (p *Pipeline) sendMirror(path string, tagged []protocol.TypedArg) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mirror sink panic: %v", r)
		}
	}()
	return p.mirror.Send(path, tagged)
}

// GetStatistics returns current routing statistics
func (p *Pipeline) GetStatistics() PipelineStatistics {
	return PipelineStatistics{
		MessagesRouted:   p.routed.Load(),
		MessagesFiltered: p.filtered.Load(),
		BroadcastErrors:  p.broadcastFails.Load(),
		MirrorFailures:   p.mirrorFails.Load(),
		WhitelistSize:    p.whitelist.Len(),
	}
}
