package notifier

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nkkko/lista/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(channel, event string) *proto.Envelope {
	return &proto.Envelope{Channel: channel, Event: event, Data: []byte(`{"list_id":1}`)}
}

func receive(t *testing.T, ch <-chan *proto.Envelope) *proto.Envelope {
	t.Helper()
	select {
	case env, ok := <-ch:
		require.True(t, ok, "channel closed")
		return env
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for envelope")
		return nil
	}
}

func TestBroadcastBuffer(t *testing.T) {
	flushInterval := 10 * time.Millisecond
	buffer := NewBroadcastBuffer(10, flushInterval)
	defer buffer.Close()

	const numSubscribers = 5
	channels := make([]<-chan *proto.Envelope, numSubscribers)
	for i := 0; i < numSubscribers; i++ {
		channels[i] = buffer.Subscribe(fmt.Sprintf("subscriber-%d", i), 10, nil)
	}
	assert.Equal(t, numSubscribers, buffer.Subscribers())

	buffer.Publish(envelope("shopping-list-1", proto.EventListUpdated))
	for _, ch := range channels {
		assert.Equal(t, proto.EventListUpdated, receive(t, ch).Event)
	}

	buffer.Unsubscribe("subscriber-0")
	_, ok := <-channels[0]
	assert.False(t, ok, "unsubscribed channel is closed")

	buffer.Publish(envelope("shopping-list-1", proto.EventListDeleted))
	for i := 1; i < numSubscribers; i++ {
		assert.Equal(t, proto.EventListDeleted, receive(t, channels[i]).Event)
	}
}

func TestBroadcastBufferFiltersByChannel(t *testing.T) {
	buffer := NewBroadcastBuffer(10, 10*time.Millisecond)
	defer buffer.Close()

	lists := buffer.Subscribe("lists", 10, func(channel string) bool {
		return channel == proto.ListChannel(1)
	})
	users := buffer.Subscribe("users", 10, func(channel string) bool {
		return channel == proto.UserChannel(7)
	})

	buffer.Publish(envelope(proto.UserChannel(7), proto.EventShareUpdate))
	buffer.Publish(envelope(proto.ListChannel(1), proto.EventListDeleted))

	assert.Equal(t, proto.EventListDeleted, receive(t, lists).Event)
	assert.Equal(t, proto.EventShareUpdate, receive(t, users).Event)

	select {
	case env := <-lists:
		t.Fatalf("unexpected envelope %v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastBufferForcesFlushWhenFull(t *testing.T) {
	// The ticker alone would not fire during the test
	buffer := NewBroadcastBuffer(3, time.Hour)
	defer buffer.Close()

	ch := buffer.Subscribe("s", 10, nil)
	for i := 0; i < 3; i++ {
		buffer.Publish(envelope("c", fmt.Sprintf("e%d", i)))
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, fmt.Sprintf("e%d", i), receive(t, ch).Event)
	}
}

func TestBroadcastBufferDropsForSlowSubscribers(t *testing.T) {
	buffer := NewBroadcastBuffer(100, 10*time.Millisecond)
	defer buffer.Close()

	slow := buffer.Subscribe("slow", 1, nil)
	fast := buffer.Subscribe("fast", 10, nil)

	for i := 0; i < 5; i++ {
		buffer.Publish(envelope("c", fmt.Sprintf("e%d", i)))
	}

	for i := 0; i < 5; i++ {
		receive(t, fast)
	}
	assert.Equal(t, "e0", receive(t, slow).Event)

	select {
	case env := <-slow:
		t.Fatalf("slow subscriber should have dropped %v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastBufferCloseFlushesAndClosesChannels(t *testing.T) {
	buffer := NewBroadcastBuffer(100, time.Hour)

	ch := buffer.Subscribe("s", 10, nil)
	buffer.Publish(envelope("c", "last"))

	require.NoError(t, buffer.Close())
	require.NoError(t, buffer.Close())

	assert.Equal(t, "last", receive(t, ch).Event)
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, buffer.Subscribers())

	// Unsubscribing after close must not double-close
	buffer.Unsubscribe("s")
}

func TestBroadcastBufferConcurrentSubscribeAndPublish(t *testing.T) {
	buffer := NewBroadcastBuffer(16, time.Millisecond)
	defer buffer.Close()

	var received atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("sub-%d", i)
			ch := buffer.Subscribe(id, 64, nil)
			deadline := time.After(20 * time.Millisecond)
			for {
				select {
				case _, ok := <-ch:
					if !ok {
						return
					}
					received.Add(1)
				case <-deadline:
					buffer.Unsubscribe(id)
					return
				}
			}
		}(i)
	}

	for i := 0; i < 200; i++ {
		buffer.Publish(envelope("c", "tick"))
	}

	wg.Wait()
	assert.Equal(t, 0, buffer.Subscribers())
}
