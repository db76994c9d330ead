package realtime

import (
	"context"
	"sync"

	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/metrics"
	"github.com/nkkko/lista/internal/router"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/rs/zerolog"
)

// Client is a connected push transport with a channel/event handler registry
type Client struct {
	conn   Conn
	router *router.Router

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	logger  zerolog.Logger
	metrics *metrics.RealtimeMetrics
}

// NewClient wraps a connection. Call Connect before use.
func NewClient(conn Conn) *Client {
	return &Client{
		conn:    conn,
		router:  router.NewRouter(),
		done:    make(chan struct{}),
		logger:  logging.Component("realtime"),
		metrics: metrics.GetMetrics().Realtime,
	}
}

// Connect dials the connection and starts routing inbound envelopes
func (c *Client) Connect(ctx context.Context) error {
	if err := c.conn.Dial(ctx); err != nil {
		return err
	}

	routeCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go func() {
		defer close(c.done)
		_ = c.router.Start(routeCtx, c.conn.Receive())
	}()

	return nil
}

// Subscribe adds a reference to a channel, sending a subscribe frame on the first one.
// The reference is kept even if the frame fails; the transport replays it on reconnect.
func (c *Client) Subscribe(ctx context.Context, channel string) error {
	if !c.router.Subscribe(channel) {
		return nil
	}

	if err := c.conn.Send(ctx, &proto.Frame{Type: proto.FrameSubscribe, Channel: channel}); err != nil {
		c.metrics.SubscribeErrors.Inc()
		return err
	}

	c.logger.Debug().Str("channel", channel).Msg("Subscribed")
	return nil
}

// Unsubscribe drops a reference to a channel, sending an unsubscribe frame on the last one
func (c *Client) Unsubscribe(ctx context.Context, channel string) error {
	if !c.router.Unsubscribe(channel) {
		return nil
	}

	c.logger.Debug().Str("channel", channel).Msg("Unsubscribed")
	return c.conn.Send(ctx, &proto.Frame{Type: proto.FrameUnsubscribe, Channel: channel})
}

// Bind registers a handler for an event on a subscribed channel
func (c *Client) Bind(channel, event string, h router.Handler) (string, error) {
	return c.router.Bind(channel, event, h)
}

// Unbind removes a handler
func (c *Client) Unbind(bindingID string) bool {
	return c.router.Unbind(bindingID)
}

// Channels returns the channels currently subscribed
func (c *Client) Channels() []string {
	return c.router.Channels()
}

// Close closes the connection and stops routing
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		err = c.conn.Close()
		if c.cancel != nil {
			c.cancel()
			<-c.done
		}
		_ = c.router.Shutdown(context.Background())
	})
	return err
}
