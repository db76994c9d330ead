package store

import (
	"sync"
	"time"

	"github.com/nkkko/lista/internal/metrics"
	"github.com/nkkko/lista/pkg/proto"
)

// Notifier shows a user-facing notification. A zero timeout uses the default
// for the type; a negative timeout keeps the notification until replaced.
type Notifier interface {
	Show(message string, typ proto.NotificationType, timeout time.Duration)
}

// NotificationConfig holds the default display time per type
type NotificationConfig struct {
	SuccessTimeout time.Duration
	ErrorTimeout   time.Duration
	InfoTimeout    time.Duration
	WarningTimeout time.Duration
}

// DefaultNotificationConfig returns the default display times
func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		SuccessTimeout: 3 * time.Second,
		ErrorTimeout:   5 * time.Second,
		InfoTimeout:    4 * time.Second,
		WarningTimeout: 5 * time.Second,
	}
}

// Notifications holds the single notification currently shown.
// Showing a new notification replaces the old one and cancels its timer.
type Notifications struct {
	config  NotificationConfig
	metrics *metrics.Metrics

	mu        sync.Mutex
	current   *proto.Notification
	timer     *time.Timer
	gen       uint64
	observers []func(*proto.Notification)
}

// Ensure Notifications implements Notifier
var _ Notifier = (*Notifications)(nil)

// NewNotifications creates an empty notification slot
func NewNotifications(config NotificationConfig) *Notifications {
	defaults := DefaultNotificationConfig()
	if config.SuccessTimeout == 0 {
		config.SuccessTimeout = defaults.SuccessTimeout
	}
	if config.ErrorTimeout == 0 {
		config.ErrorTimeout = defaults.ErrorTimeout
	}
	if config.InfoTimeout == 0 {
		config.InfoTimeout = defaults.InfoTimeout
	}
	if config.WarningTimeout == 0 {
		config.WarningTimeout = defaults.WarningTimeout
	}
	return &Notifications{config: config, metrics: metrics.GetMetrics()}
}

func (n *Notifications) defaultTimeout(typ proto.NotificationType) time.Duration {
	switch typ {
	case proto.NotificationType_SUCCESS:
		return n.config.SuccessTimeout
	case proto.NotificationType_ERROR:
		return n.config.ErrorTimeout
	case proto.NotificationType_WARNING:
		return n.config.WarningTimeout
	default:
		return n.config.InfoTimeout
	}
}

// Show replaces the current notification
func (n *Notifications) Show(message string, typ proto.NotificationType, timeout time.Duration) {
	if typ == "" {
		typ = proto.NotificationType_INFO
	}
	if timeout == 0 {
		timeout = n.defaultTimeout(typ)
	}

	n.mu.Lock()
	n.stopTimer()
	n.gen++
	gen := n.gen
	n.current = &proto.Notification{Message: message, Type: typ, Timeout: timeout}
	if timeout > 0 {
		n.timer = time.AfterFunc(timeout, func() { n.expire(gen) })
	}
	shown := *n.current
	observers := n.observers
	n.mu.Unlock()

	n.metrics.NotificationsShown.WithLabelValues(string(typ)).Inc()
	for _, fn := range observers {
		fn(&shown)
	}
}

// expire clears the notification only if it is still the one the timer was armed for
func (n *Notifications) expire(gen uint64) {
	n.mu.Lock()
	if n.gen != gen || n.current == nil {
		n.mu.Unlock()
		return
	}
	n.current = nil
	n.timer = nil
	observers := n.observers
	n.mu.Unlock()

	for _, fn := range observers {
		fn(nil)
	}
}

// Clear removes the current notification
func (n *Notifications) Clear() {
	n.mu.Lock()
	if n.current == nil {
		n.mu.Unlock()
		return
	}
	n.stopTimer()
	n.gen++
	n.current = nil
	observers := n.observers
	n.mu.Unlock()

	for _, fn := range observers {
		fn(nil)
	}
}

// Current returns the notification shown, if any
func (n *Notifications) Current() (proto.Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return proto.Notification{}, false
	}
	return *n.current, true
}

// OnChange registers fn to be called with each new notification, and with nil
// when the slot empties. fn must not block.
func (n *Notifications) OnChange(fn func(*proto.Notification)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers = append(n.observers[:len(n.observers):len(n.observers)], fn)
}

func (n *Notifications) stopTimer() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}
