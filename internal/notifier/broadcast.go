package notifier

import (
	"sync"
	"time"

	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/metrics"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/rs/zerolog"
)

// BroadcastBuffer batches published envelopes and fans them out to subscribers
type BroadcastBuffer struct {
	// Configuration
	bufferSize    int
	flushInterval time.Duration

	// Subscription management
	subscribers     map[string]*subscriber
	subscribersLock sync.RWMutex

	// Pending envelopes
	currentBuffer     []*proto.Envelope
	currentBufferLock sync.Mutex

	// Control channels
	forceFlush chan struct{}
	close      chan struct{}
	done       chan struct{}
	closeOnce  sync.Once

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// subscriber is one receiver with its channel filter
type subscriber struct {
	ch      chan *proto.Envelope
	accepts func(channel string) bool
}

// NewBroadcastBuffer creates a new broadcast buffer
func NewBroadcastBuffer(bufferSize int, flushInterval time.Duration) *BroadcastBuffer {
	b := &BroadcastBuffer{
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		subscribers:   make(map[string]*subscriber),
		currentBuffer: make([]*proto.Envelope, 0, bufferSize),
		forceFlush:    make(chan struct{}, 1),
		close:         make(chan struct{}),
		done:          make(chan struct{}),
		metrics:       metrics.GetMetrics(),
		logger:        logging.Component("broadcast"),
	}

	go b.bufferFlushLoop()

	return b
}

// Subscribe adds a subscriber receiving envelopes whose channel accepts returns
// true for. A nil accepts receives everything.
func (b *BroadcastBuffer) Subscribe(id string, buffer int, accepts func(channel string) bool) <-chan *proto.Envelope {
	b.subscribersLock.Lock()
	defer b.subscribersLock.Unlock()

	if old, ok := b.subscribers[id]; ok {
		close(old.ch)
	}

	ch := make(chan *proto.Envelope, buffer)
	b.subscribers[id] = &subscriber{ch: ch, accepts: accepts}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel
func (b *BroadcastBuffer) Unsubscribe(id string) {
	b.subscribersLock.Lock()
	defer b.subscribersLock.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Subscribers returns the number of subscribers
func (b *BroadcastBuffer) Subscribers() int {
	b.subscribersLock.RLock()
	defer b.subscribersLock.RUnlock()
	return len(b.subscribers)
}

// Publish queues an envelope for the next flush
func (b *BroadcastBuffer) Publish(env *proto.Envelope) {
	b.currentBufferLock.Lock()
	defer b.currentBufferLock.Unlock()

	b.currentBuffer = append(b.currentBuffer, env)

	if len(b.currentBuffer) >= b.bufferSize {
		select {
		case b.forceFlush <- struct{}{}:
		default:
			// a flush is already pending
		}
	}
}

// bufferFlushLoop periodically flushes the buffer to all subscribers
func (b *BroadcastBuffer) bufferFlushLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-b.forceFlush:
			b.flush()
		case <-b.close:
			b.flush()
			return
		}
	}
}

// flush delivers buffered envelopes without blocking on slow subscribers
func (b *BroadcastBuffer) flush() {
	b.currentBufferLock.Lock()
	buffer := b.currentBuffer
	if len(buffer) == 0 {
		b.currentBufferLock.Unlock()
		return
	}
	b.currentBuffer = make([]*proto.Envelope, 0, b.bufferSize)
	b.currentBufferLock.Unlock()

	// The read lock keeps Unsubscribe from closing a channel mid-send
	b.subscribersLock.RLock()
	defer b.subscribersLock.RUnlock()

	start := time.Now()
	delivered, skipped := 0, 0

	for id, sub := range b.subscribers {
		for _, env := range buffer {
			if sub.accepts != nil && !sub.accepts(env.Channel) {
				continue
			}
			select {
			case sub.ch <- env:
				delivered++
				b.metrics.PushEventsPublished.WithLabelValues(env.Event).Inc()
			default:
				skipped++
				b.metrics.PushEventsDropped.Inc()
				b.logger.Warn().
					Str("subscriber_id", id).
					Str("channel", env.Channel).
					Msg("Subscriber buffer full, dropping event")
			}
		}
	}

	if delay := time.Since(start); delay > 100*time.Millisecond {
		b.logger.Warn().
			Dur("delay", delay).
			Int("events", len(buffer)).
			Int("delivered", delivered).
			Int("skipped", skipped).
			Msg("High latency in broadcast buffer flush")
	}
}

// Close flushes pending envelopes and closes every subscriber channel
func (b *BroadcastBuffer) Close() error {
	b.closeOnce.Do(func() {
		close(b.close)
		<-b.done

		b.subscribersLock.Lock()
		defer b.subscribersLock.Unlock()
		for id, sub := range b.subscribers {
			close(sub.ch)
			delete(b.subscribers, id)
		}
	})
	return nil
}
