// Package notifier is the development push service. Clients connect over a
// websocket, subscribe to named channels and receive the envelopes published
// on them by the content API.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/metrics"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/rs/zerolog"
)

// Config contains notifier configuration
type Config struct {
	// Listen address
	Addr string

	// Application key clients must present; empty accepts everyone
	AppKey string

	// Maximum idle time before dropping a connection
	MaxIdleTime time.Duration

	// Interval between heartbeat frames
	HeartbeatInterval time.Duration

	// Per-client outbound buffer
	ClientBufferSize int

	// Broadcast buffer size for batching events
	BroadcastBufferSize int

	// Flush interval for broadcast buffer
	BroadcastFlushInterval time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Addr:                   ":8090",
		MaxIdleTime:            60 * time.Second,
		HeartbeatInterval:      20 * time.Second,
		ClientBufferSize:       100,
		BroadcastBufferSize:    200,
		BroadcastFlushInterval: 20 * time.Millisecond,
	}
}

// ErrInvalidEnvelope is returned when a published envelope lacks a channel or event
var ErrInvalidEnvelope = errors.New("envelope needs a channel and an event")

// Client represents a connected websocket client
type Client struct {
	ID         string
	LastActive time.Time

	conn     *websocket.Conn
	channels map[string]struct{}
	control  chan []byte
	mu       sync.Mutex
}

// subscribed reports whether the client listens on channel
func (c *Client) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channel]
	return ok
}

// Channels returns the channels the client is subscribed to
func (c *Client) Channels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

func (c *Client) touch() {
	c.mu.Lock()
	c.LastActive = time.Now()
	c.mu.Unlock()
}

// Notifier fans published envelopes out to subscribed websocket clients
type Notifier struct {
	config          Config
	app             *fiber.App
	clients         map[string]*Client
	mu              sync.RWMutex
	broadcastBuffer *BroadcastBuffer
	logger          zerolog.Logger
	metrics         *metrics.Metrics
	shutdownOnce    sync.Once
}

// NewNotifier creates a new push service
func NewNotifier(config Config) *Notifier {
	defaults := DefaultConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.MaxIdleTime <= 0 {
		config.MaxIdleTime = defaults.MaxIdleTime
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if config.ClientBufferSize <= 0 {
		config.ClientBufferSize = defaults.ClientBufferSize
	}
	if config.BroadcastBufferSize <= 0 {
		config.BroadcastBufferSize = defaults.BroadcastBufferSize
	}
	if config.BroadcastFlushInterval <= 0 {
		config.BroadcastFlushInterval = defaults.BroadcastFlushInterval
	}

	n := &Notifier{
		config:          config,
		clients:         make(map[string]*Client),
		broadcastBuffer: NewBroadcastBuffer(config.BroadcastBufferSize, config.BroadcastFlushInterval),
		logger:          logging.Component("notifier"),
		metrics:         metrics.GetMetrics(),
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          10 * time.Second,
		BodyLimit:             256 * 1024,
	})
	app.Use(recover.New())
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	n.RegisterWebSocketHandler(app)
	n.RegisterPublishHandler(app)
	n.app = app

	return n
}

// App returns the underlying Fiber app
func (n *Notifier) App() *fiber.App {
	return n.app
}

// Start listens on the configured address until ctx is cancelled
func (n *Notifier) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.config.Addr)
	if err != nil {
		return err
	}
	return n.Serve(ctx, ln)
}

// Serve runs the service on ln until ctx is cancelled
func (n *Notifier) Serve(ctx context.Context, ln net.Listener) error {
	n.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting push service")

	go n.cleanupIdleClients(ctx)
	go n.sendHeartbeats(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return n.Shutdown()
	}
}

// Shutdown disconnects every client and stops the server
func (n *Notifier) Shutdown() error {
	var err error
	n.shutdownOnce.Do(func() {
		n.logger.Info().Msg("Shutting down push service")

		n.mu.RLock()
		ids := make([]string, 0, len(n.clients))
		for id := range n.clients {
			ids = append(ids, id)
		}
		n.mu.RUnlock()
		for _, id := range ids {
			n.removeClient(id)
		}

		_ = n.broadcastBuffer.Close()
		err = n.app.Shutdown()
	})
	return err
}

// Publish queues data for delivery on channel under the given event name.
// Data that is already JSON is forwarded untouched.
func (n *Notifier) Publish(channel, event string, data any) error {
	if channel == "" || event == "" {
		return ErrInvalidEnvelope
	}

	var raw json.RawMessage
	switch v := data.(type) {
	case nil:
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return err
		}
		raw = encoded
	}

	n.broadcastBuffer.Publish(&proto.Envelope{Channel: channel, Event: event, Data: raw})
	return nil
}

// Clients returns the number of connected clients
func (n *Notifier) Clients() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.clients)
}

// Subscribers returns the number of connected clients listening on channel
func (n *Notifier) Subscribers(channel string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	count := 0
	for _, c := range n.clients {
		if c.subscribed(channel) {
			count++
		}
	}
	return count
}

func (n *Notifier) authorized(key string) bool {
	return n.config.AppKey == "" || key == n.config.AppKey
}

// RegisterWebSocketHandler registers the websocket handler with a Fiber app
func (n *Notifier) RegisterWebSocketHandler(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if !n.authorized(c.Query("app_key")) {
			return fiber.ErrUnauthorized
		}
		return c.Next()
	})

	app.Get("/ws", websocket.New(n.handleWebSocketClient))
}

// RegisterPublishHandler registers the HTTP publish endpoint with a Fiber app
func (n *Notifier) RegisterPublishHandler(app *fiber.App) {
	app.Post("/publish", func(c *fiber.Ctx) error {
		key := c.Get("X-App-Key")
		if key == "" {
			key = c.Query("app_key")
		}
		if !n.authorized(key) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid app key"})
		}

		var env proto.Envelope
		if err := json.Unmarshal(c.Body(), &env); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		if err := n.Publish(env.Channel, env.Event, env.Data); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(fiber.StatusAccepted)
	})
}

// handleWebSocketClient serves one connection; the socket closes when it returns
func (n *Notifier) handleWebSocketClient(conn *websocket.Conn) {
	client := &Client{
		ID:         generateID(),
		LastActive: time.Now(),
		conn:       conn,
		channels:   make(map[string]struct{}),
		control:    make(chan []byte, 8),
	}

	events := n.broadcastBuffer.Subscribe(client.ID, n.config.ClientBufferSize, client.subscribed)

	n.mu.Lock()
	n.clients[client.ID] = client
	n.mu.Unlock()
	n.metrics.PushConnectionsActive.Inc()

	n.logger.Debug().Str("client_id", client.ID).Msg("Client connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		n.writeLoop(client, events)
	}()

	n.readLoop(client)
	n.removeClient(client.ID)
	<-done
}

// readLoop processes control frames until the socket fails
func (n *Notifier) readLoop(client *Client) {
	for {
		messageType, message, err := client.conn.ReadMessage()
		if err != nil {
			n.logger.Debug().Err(err).Str("client_id", client.ID).Msg("WebSocket read error")
			return
		}
		client.touch()

		if messageType != websocket.TextMessage {
			continue
		}
		n.processClientMessage(client, message)
	}
}

// writeLoop is the only writer on the socket
func (n *Notifier) writeLoop(client *Client, events <-chan *proto.Envelope) {
	for {
		var payload []byte

		select {
		case env, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				n.logger.Error().Err(err).Str("client_id", client.ID).Msg("Failed to marshal envelope")
				continue
			}
			payload = data
		case payload = <-client.control:
		}

		_ = client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			n.logger.Debug().Err(err).Str("client_id", client.ID).Msg("WebSocket write error")
			// Unblocks the read loop, which removes the client
			_ = client.conn.Close()
			for range events {
			}
			return
		}
	}
}

// reply queues a control frame; frames are dropped when the client lags
func (n *Notifier) reply(client *Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case client.control <- data:
	default:
		n.metrics.PushEventsDropped.Inc()
	}
}

// processClientMessage handles frames sent by clients
func (n *Notifier) processClientMessage(client *Client, message []byte) {
	var frame proto.Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		n.logger.Debug().Err(err).Str("client_id", client.ID).Msg("Failed to parse client frame")
		n.reply(client, fiber.Map{"event": "error", "data": fiber.Map{"message": "invalid frame"}})
		return
	}

	switch frame.Type {
	case proto.FrameSubscribe:
		if frame.Channel == "" {
			return
		}
		client.mu.Lock()
		client.channels[frame.Channel] = struct{}{}
		client.mu.Unlock()
		n.reply(client, fiber.Map{"event": "subscribed", "data": fiber.Map{"channel": frame.Channel}})
		n.logger.Debug().Str("client_id", client.ID).Str("channel", frame.Channel).Msg("Client subscribed")

	case proto.FrameUnsubscribe:
		client.mu.Lock()
		delete(client.channels, frame.Channel)
		client.mu.Unlock()

	case proto.FramePing:
		n.reply(client, fiber.Map{"event": "pong"})

	case proto.FramePublish:
		if err := n.Publish(frame.Channel, frame.Event, frame.Data); err != nil {
			n.reply(client, fiber.Map{"event": "error", "data": fiber.Map{"message": err.Error()}})
		}

	default:
		n.logger.Debug().
			Str("client_id", client.ID).
			Str("type", frame.Type).
			Msg("Unknown client frame")
	}
}

// removeClient disconnects a client; it is safe to call more than once
func (n *Notifier) removeClient(clientID string) {
	n.mu.Lock()
	client, exists := n.clients[clientID]
	if exists {
		delete(n.clients, clientID)
	}
	n.mu.Unlock()

	if !exists {
		return
	}

	n.broadcastBuffer.Unsubscribe(clientID)
	_ = client.conn.Close()
	n.metrics.PushConnectionsActive.Dec()

	n.logger.Debug().Str("client_id", clientID).Msg("Client removed")
}

// cleanupIdleClients periodically removes idle clients
func (n *Notifier) cleanupIdleClients(ctx context.Context) {
	ticker := time.NewTicker(n.config.MaxIdleTime / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.performClientCleanup()
		case <-ctx.Done():
			return
		}
	}
}

// performClientCleanup removes clients that have been idle for too long
func (n *Notifier) performClientCleanup() {
	now := time.Now()
	var idleClients []string

	n.mu.RLock()
	for id, client := range n.clients {
		client.mu.Lock()
		lastActive := client.LastActive
		client.mu.Unlock()

		if now.Sub(lastActive) > n.config.MaxIdleTime {
			idleClients = append(idleClients, id)
		}
	}
	n.mu.RUnlock()

	for _, id := range idleClients {
		n.removeClient(id)
		n.logger.Debug().Str("client_id", id).Msg("Removed idle client")
	}
}

// sendHeartbeats periodically sends heartbeat frames to clients
func (n *Notifier) sendHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(n.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			heartbeat := fiber.Map{"event": "heartbeat", "data": fiber.Map{"timestamp": time.Now().UTC().Format(time.RFC3339)}}
			n.mu.RLock()
			for _, client := range n.clients {
				n.reply(client, heartbeat)
			}
			n.mu.RUnlock()
		case <-ctx.Done():
			return
		}
	}
}

// generateID creates a unique client ID
func generateID() string {
	return uuid.New().String()
}
