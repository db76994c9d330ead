package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/metrics"
	"github.com/nkkko/lista/internal/router"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/rs/zerolog"
)

// Notifier shows a user-facing notification. A zero timeout uses the default for the type.
type Notifier interface {
	Show(message string, typ proto.NotificationType, timeout time.Duration)
}

// HookOptions are shared by every hook
type HookOptions struct {
	// Provider supplies the shared push client
	Provider *Provider

	// Self returns the id of the local user; events sent by it never notify
	Self func() proto.ID

	// Notifier receives messages carried by events from other users; may be nil
	Notifier Notifier
}

// hookSpec describes what a hook subscribes to and how it applies events
type hookSpec struct {
	name    string
	channel func(id proto.ID) string
	events  []string
	apply   func(id proto.ID, ev proto.Event)
}

// subscription is one (channel, handlers) pair owned by a hook
type subscription struct {
	id       proto.ID
	channel  string
	bindings []string
	active   atomic.Bool

	// applying is read-held by handlers while they mutate state; teardown
	// takes it exclusively so no mutation outlives the subscription
	applying sync.RWMutex
}

// Hook binds one push channel, derived from an identifier, to a local state mutation.
//
// While the identifier is zero it does nothing. Changing the identifier
// releases the old channel before subscribing the new one. Close releases the
// channel and the shared client reference; it is safe to call more than once.
type Hook struct {
	spec hookSpec
	opts HookOptions

	mu     sync.Mutex
	client *Client
	sub    *subscription
	closed bool

	logger  zerolog.Logger
	metrics *metrics.RealtimeMetrics
}

func newHook(spec hookSpec, opts HookOptions) *Hook {
	return &Hook{
		spec:    spec,
		opts:    opts,
		logger:  logging.Component("hook").With().Str("hook", spec.name).Logger(),
		metrics: metrics.GetMetrics().Realtime,
	}
}

// SetID points the hook at a new identifier. Failures are logged, not returned;
// the transport retries on its own.
func (h *Hook) SetID(ctx context.Context, id proto.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	if h.sub != nil && h.sub.id == id {
		return
	}

	h.teardown()

	if id.IsZero() {
		return
	}

	if h.client == nil {
		client, err := h.opts.Provider.Acquire(ctx)
		if err != nil {
			h.metrics.SubscribeErrors.Inc()
			h.logger.Warn().Err(err).Msg("Push client unavailable")
			return
		}
		h.client = client
	}

	sub := &subscription{id: id, channel: h.spec.channel(id)}
	sub.active.Store(true)

	if err := h.client.Subscribe(ctx, sub.channel); err != nil {
		h.logger.Warn().Err(err).Str("channel", sub.channel).Msg("Subscribe failed")
	}

	for _, event := range h.spec.events {
		bindingID, err := h.client.Bind(sub.channel, event, h.handler(sub))
		if err != nil {
			h.logger.Warn().Err(err).Str("channel", sub.channel).Str("event", event).Msg("Bind failed")
			continue
		}
		sub.bindings = append(sub.bindings, bindingID)
	}

	h.sub = sub
}

// ID returns the identifier currently subscribed, or zero
func (h *Hook) ID() proto.ID {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sub == nil {
		return 0
	}
	return h.sub.id
}

// Channel returns the channel currently subscribed, or ""
func (h *Hook) Channel() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sub == nil {
		return ""
	}
	return h.sub.channel
}

// Close unbinds every handler, unsubscribes and releases the shared client
func (h *Hook) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	h.teardown()

	if h.client != nil {
		h.client = nil
		h.opts.Provider.Release()
	}
}

// teardown releases the current subscription. Callers hold h.mu.
func (h *Hook) teardown() {
	sub := h.sub
	if sub == nil {
		return
	}
	h.sub = nil

	// Handlers already routed check this before touching state
	sub.active.Store(false)
	sub.applying.Lock()
	sub.applying.Unlock()

	for _, id := range sub.bindings {
		h.client.Unbind(id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := h.client.Unsubscribe(ctx, sub.channel); err != nil {
		h.logger.Debug().Err(err).Str("channel", sub.channel).Msg("Unsubscribe failed")
	}
}

// handler decodes envelopes for a subscription and applies them while it is active
func (h *Hook) handler(sub *subscription) router.Handler {
	return func(env *proto.Envelope) {
		if !sub.active.Load() {
			h.metrics.EventsDropped.WithLabelValues("inactive").Inc()
			return
		}

		ev, err := proto.DecodeEvent(env.Event, env.Data)
		if err != nil {
			reason := "malformed"
			if errors.Is(err, proto.ErrUnknownEvent) {
				reason = "unknown_event"
			}
			h.metrics.EventsDropped.WithLabelValues(reason).Inc()
			h.logger.Warn().Err(err).Str("channel", env.Channel).Msg("Dropping event")
			return
		}

		sub.applying.RLock()
		defer sub.applying.RUnlock()
		if !sub.active.Load() {
			h.metrics.EventsDropped.WithLabelValues("inactive").Inc()
			return
		}

		h.spec.apply(sub.id, ev)
		h.metrics.EventsApplied.WithLabelValues(h.spec.name).Inc()

		h.notify(ev)
	}
}

// notify shows the event's message unless the local user sent it
func (h *Hook) notify(ev proto.Event) {
	if h.opts.Notifier == nil || ev.Text() == "" {
		return
	}
	if h.opts.Self != nil {
		if self := h.opts.Self(); !self.IsZero() && ev.Sender() == self {
			return
		}
	}
	h.opts.Notifier.Show(ev.Text(), proto.NotificationType_INFO, 0)
}
