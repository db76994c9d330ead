package router

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/metrics"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/rs/zerolog"
)

// ErrNotSubscribed is returned when binding a handler to a channel that has no subscription
var ErrNotSubscribed = errors.New("channel not subscribed")

// Handler receives an envelope routed to its channel and event
type Handler func(env *proto.Envelope)

// bindingKey locates a binding inside the channel table
type bindingKey struct {
	channel string
	event   string
}

// channelState tracks the subscribers and handlers of one channel
type channelState struct {
	refs     int
	handlers map[string]map[string]Handler // event -> binding ID -> handler
}

// Router dispatches push envelopes to the handlers bound on their channel and event
type Router struct {
	channels map[string]*channelState
	bindings map[string]bindingKey // binding ID -> location
	mu       sync.RWMutex
	logger   zerolog.Logger
	metrics  *metrics.RealtimeMetrics
}

// NewRouter creates a new envelope router
func NewRouter() *Router {
	return &Router{
		channels: make(map[string]*channelState),
		bindings: make(map[string]bindingKey),
		logger:   logging.Component("router"),
		metrics:  metrics.GetMetrics().Realtime,
	}
}

// Start routes envelopes from the stream until it closes or ctx is done
func (r *Router) Start(ctx context.Context, envelopes <-chan *proto.Envelope) error {
	r.logger.Debug().Msg("Starting envelope router")

	for {
		select {
		case env, ok := <-envelopes:
			if !ok {
				r.logger.Debug().Msg("Envelope stream closed, stopping router")
				return nil
			}
			r.Route(env)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Route invokes every handler bound to the envelope's channel and event.
// Handlers run outside the router lock and may bind or unbind.
// It returns the number of handlers invoked.
func (r *Router) Route(env *proto.Envelope) int {
	if env == nil || env.Channel == "" {
		return 0
	}

	r.metrics.EventsReceived.WithLabelValues(env.Event).Inc()

	r.mu.RLock()
	state, ok := r.channels[env.Channel]
	if !ok {
		r.mu.RUnlock()
		r.metrics.EventsDropped.WithLabelValues("unsubscribed").Inc()
		return 0
	}

	// Copy the handlers to avoid holding the lock while they run
	handlers := make([]Handler, 0, len(state.handlers[env.Event]))
	for _, h := range state.handlers[env.Event] {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()

	if len(handlers) == 0 {
		r.metrics.EventsDropped.WithLabelValues("unbound").Inc()
		r.logger.Debug().
			Str("channel", env.Channel).
			Str("event", env.Event).
			Msg("No handler bound for event")
		return 0
	}

	for _, h := range handlers {
		h(env)
	}
	return len(handlers)
}

// Subscribe adds a reference to a channel.
// It reports whether this was the first reference.
func (r *Router) Subscribe(channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.channels[channel]
	if !ok {
		state = &channelState{handlers: make(map[string]map[string]Handler)}
		r.channels[channel] = state
		r.metrics.SubscriptionsActive.Inc()
	}
	state.refs++

	return state.refs == 1
}

// Unsubscribe drops a reference to a channel. When the last reference goes,
// every handler still bound on the channel is removed.
// It reports whether this was the last reference; unknown channels are a no-op.
func (r *Router) Unsubscribe(channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.channels[channel]
	if !ok {
		return false
	}

	state.refs--
	if state.refs > 0 {
		return false
	}

	for _, byID := range state.handlers {
		for id := range byID {
			delete(r.bindings, id)
		}
	}
	delete(r.channels, channel)
	r.metrics.SubscriptionsActive.Dec()

	return true
}

// Bind registers a handler for an event on a subscribed channel and returns its binding ID
func (r *Router) Bind(channel, event string, h Handler) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.channels[channel]
	if !ok {
		return "", ErrNotSubscribed
	}

	id := generateID()
	if _, ok := state.handlers[event]; !ok {
		state.handlers[event] = make(map[string]Handler)
	}
	state.handlers[event][id] = h
	r.bindings[id] = bindingKey{channel: channel, event: event}

	return id, nil
}

// Unbind removes a handler. It reports whether the binding existed.
func (r *Router) Unbind(bindingID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.bindings[bindingID]
	if !ok {
		return false
	}
	delete(r.bindings, bindingID)

	if state, ok := r.channels[key.channel]; ok {
		if byID, ok := state.handlers[key.event]; ok {
			delete(byID, bindingID)
			if len(byID) == 0 {
				delete(state.handlers, key.event)
			}
		}
	}

	return true
}

// Channels returns the subscribed channel names in sorted order
func (r *Router) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refs returns the number of references held on a channel
func (r *Router) Refs(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if state, ok := r.channels[channel]; ok {
		return state.refs
	}
	return 0
}

// Shutdown drops every channel and binding
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics.SubscriptionsActive.Sub(float64(len(r.channels)))
	r.channels = make(map[string]*channelState)
	r.bindings = make(map[string]bindingKey)

	return nil
}

// Variable for generating unique binding IDs
// Can be replaced in tests for deterministic behavior
var generateID = func() string {
	return uuid.NewString()
}
