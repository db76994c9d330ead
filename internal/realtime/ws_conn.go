package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/metrics"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/rs/zerolog"
)

const writeTimeout = 10 * time.Second

// WSConn is a websocket connection to the push service that reconnects on its own
type WSConn struct {
	config Config
	dialer *websocket.Dialer
	header http.Header

	mu       sync.Mutex
	conn     *websocket.Conn
	channels map[string]struct{}
	dialed   bool
	closed   bool

	writeMu sync.Mutex

	envelopes chan *proto.Envelope
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	logger  zerolog.Logger
	metrics *metrics.RealtimeMetrics
}

// NewWSConn creates an unconnected websocket transport
func NewWSConn(config Config, header http.Header) *WSConn {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if header == nil {
		header = http.Header{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WSConn{
		config:    config,
		dialer:    websocket.DefaultDialer,
		header:    header,
		channels:  make(map[string]struct{}),
		envelopes: make(chan *proto.Envelope, config.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logging.Component("realtime").With().Str("url", config.URL).Logger(),
		metrics:   metrics.GetMetrics().Realtime,
	}
}

// Dial connects to the push service. If the first attempt fails for any reason
// other than ctx, the transport keeps retrying in the background and Dial returns nil;
// subscriptions made meanwhile are sent once the socket is up.
func (c *WSConn) Dial(ctx context.Context) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.dialed {
		c.mu.Unlock()
		return nil
	}
	c.dialed = true
	c.mu.Unlock()

	if err := c.connect(ctx, endpoint); err != nil {
		if ctx.Err() != nil {
			c.mu.Lock()
			c.dialed = false
			c.mu.Unlock()
			return ctx.Err()
		}
		if errors.Is(err, ErrClosed) {
			return err
		}
		c.logger.Warn().Err(err).Msg("Initial connect failed, retrying in background")
	}

	c.wg.Add(1)
	go c.run(endpoint)

	if c.config.PingInterval > 0 {
		c.wg.Add(1)
		go c.keepalive()
	}

	return nil
}

// Send writes a control frame. Subscribe and unsubscribe frames are remembered
// and succeed while disconnected; they are replayed on reconnect.
func (c *WSConn) Send(ctx context.Context, frame *proto.Frame) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	switch frame.Type {
	case proto.FrameSubscribe:
		c.channels[frame.Channel] = struct{}{}
	case proto.FrameUnsubscribe:
		delete(c.channels, frame.Channel)
	}
	ws := c.conn
	c.mu.Unlock()

	if ws == nil {
		if frame.Type == proto.FrameSubscribe || frame.Type == proto.FrameUnsubscribe {
			return nil
		}
		return ErrNotConnected
	}

	deadline := time.Now().Add(writeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	return c.write(ws, frame, deadline)
}

// Receive returns the inbound envelope stream
func (c *WSConn) Receive() <-chan *proto.Envelope {
	return c.envelopes
}

// Close closes the socket, stops reconnecting and closes the envelope stream
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		ws := c.conn
		c.conn = nil
		c.mu.Unlock()

		c.cancel()

		if ws != nil {
			c.metrics.ConnectionsOpen.Dec()
			_ = ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			ws.Close()
		}

		c.wg.Wait()
		close(c.envelopes)
		c.logger.Debug().Msg("Push transport closed")
	})
	return nil
}

// endpoint builds the websocket URL including the application key
func (c *WSConn) endpoint() (string, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", fmt.Errorf("invalid push url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid push url scheme %q", u.Scheme)
	}

	if c.config.AppKey != "" {
		q := u.Query()
		q.Set("app_key", c.config.AppKey)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// connect dials once and replays subscriptions on the new socket
func (c *WSConn) connect(ctx context.Context, endpoint string) error {
	ws, _, err := c.dialer.DialContext(ctx, endpoint, c.header)
	if err != nil {
		c.metrics.Connects.WithLabelValues("error").Inc()
		return fmt.Errorf("dial push service: %w", err)
	}
	c.metrics.Connects.WithLabelValues("ok").Inc()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return ErrClosed
	}
	c.conn = ws
	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mu.Unlock()
	c.metrics.ConnectionsOpen.Inc()

	sort.Strings(channels)
	for _, ch := range channels {
		frame := &proto.Frame{Type: proto.FrameSubscribe, Channel: ch}
		if err := c.write(ws, frame, time.Now().Add(writeTimeout)); err != nil {
			c.detach(ws)
			return fmt.Errorf("resubscribe %s: %w", ch, err)
		}
	}

	c.logger.Info().Int("channels", len(channels)).Msg("Connected to push service")
	return nil
}

// reconnect dials with exponential backoff until it succeeds or the transport closes
func (c *WSConn) reconnect(endpoint string) error {
	b := backoff.NewExponentialBackOff()
	if c.config.ReconnectInitial > 0 {
		b.InitialInterval = c.config.ReconnectInitial
	}
	if c.config.ReconnectMax > 0 {
		b.MaxInterval = c.config.ReconnectMax
	}
	b.MaxElapsedTime = 0

	operation := func() error {
		err := c.connect(c.ctx, endpoint)
		if errors.Is(err, ErrClosed) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("Reconnect attempt failed")
	}

	return backoff.RetryNotify(operation, backoff.WithContext(b, c.ctx), notify)
}

// run reads from the current socket and reconnects whenever it drops
func (c *WSConn) run(endpoint string) {
	defer c.wg.Done()

	for {
		ws := c.current()
		if ws == nil {
			if err := c.reconnect(endpoint); err != nil {
				return
			}
			if ws = c.current(); ws == nil {
				return
			}
		}

		c.readLoop(ws)
		c.detach(ws)

		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn().Msg("Connection to push service lost, reconnecting")
	}
}

// readLoop decodes envelopes until the socket fails
func (c *WSConn) readLoop(ws *websocket.Conn) {
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Debug().Err(err).Msg("Read failed")
			}
			return
		}

		var env proto.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.metrics.EventsDropped.WithLabelValues("malformed").Inc()
			c.logger.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}

		// Control replies such as pong carry no channel
		if env.Channel == "" {
			continue
		}

		select {
		case c.envelopes <- &env:
		default:
			c.metrics.EventsDropped.WithLabelValues("buffer_full").Inc()
			c.logger.Warn().
				Str("channel", env.Channel).
				Str("event", env.Event).
				Msg("Envelope buffer full, dropping event")
		}
	}
}

// keepalive sends periodic ping frames on the current socket
func (c *WSConn) keepalive() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if ws := c.current(); ws != nil {
				if err := c.write(ws, &proto.Frame{Type: proto.FramePing}, time.Now().Add(writeTimeout)); err != nil {
					c.logger.Debug().Err(err).Msg("Ping failed")
				}
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *WSConn) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// detach forgets a socket if it is still the current one and closes it
func (c *WSConn) detach(ws *websocket.Conn) {
	c.mu.Lock()
	if c.conn == ws {
		c.conn = nil
		c.metrics.ConnectionsOpen.Dec()
	}
	c.mu.Unlock()
	ws.Close()
}

func (c *WSConn) write(ws *websocket.Conn, frame *proto.Frame, deadline time.Time) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return ws.WriteJSON(frame)
}
