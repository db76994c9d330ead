package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/metrics"
	"github.com/rs/zerolog"
)

// Provider hands out a single shared push client.
//
// The client is connected on the first Acquire. When the last reference is
// released it stays open for the linger period, and an Acquire during that
// window reuses it, so views that unmount and remount quickly never close a
// socket that is still handshaking.
type Provider struct {
	newConn func() Conn
	linger  time.Duration

	mu     sync.Mutex
	refs   int
	client *Client
	timer  *time.Timer
	gen    uint64
	closed bool

	logger  zerolog.Logger
	metrics *metrics.RealtimeMetrics
}

// NewProvider creates a provider that builds connections with newConn
func NewProvider(newConn func() Conn, linger time.Duration) *Provider {
	return &Provider{
		newConn: newConn,
		linger:  linger,
		logger:  logging.Component("realtime-provider"),
		metrics: metrics.GetMetrics().Realtime,
	}
}

// NewWSProvider creates a provider backed by websocket connections
func NewWSProvider(config Config) *Provider {
	return NewProvider(func() Conn {
		return NewWSConn(config, nil)
	}, config.Linger)
}

// Acquire returns the shared client, connecting it if needed.
// Every successful Acquire must be paired with a Release.
func (p *Provider) Acquire(ctx context.Context) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	// A pending linger close is cancelled by bumping the generation
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
		p.gen++
	}

	if p.client == nil {
		client := NewClient(p.newConn())
		if err := client.Connect(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		p.client = client
		p.logger.Debug().Msg("Push client connected")
	}

	p.refs++
	p.metrics.HandleRefs.Inc()

	return p.client, nil
}

// Release drops a reference. The client is closed once no references remain
// for the linger period.
func (p *Provider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refs == 0 {
		return
	}
	p.refs--
	p.metrics.HandleRefs.Dec()

	if p.refs > 0 || p.client == nil || p.closed {
		return
	}

	p.gen++
	gen := p.gen
	p.timer = time.AfterFunc(p.linger, func() {
		p.expire(gen)
	})
}

// expire closes the client if nothing re-acquired it since the timer was armed
func (p *Provider) expire(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.refs > 0 || p.client == nil {
		p.mu.Unlock()
		return
	}
	client := p.client
	p.client = nil
	p.timer = nil
	p.mu.Unlock()

	p.logger.Debug().Msg("Closing idle push client")
	if err := client.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to close push client")
	}
}

// Refs returns the number of outstanding references
func (p *Provider) Refs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs
}

// Connected reports whether a client is currently open
func (p *Provider) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil
}

// Close tears the client down immediately. Later Acquire calls fail.
// It must not be called from an event handler.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
	client := p.client
	p.client = nil
	p.metrics.HandleRefs.Sub(float64(p.refs))
	p.refs = 0
	p.mu.Unlock()

	if client != nil {
		return client.Close()
	}
	return nil
}
