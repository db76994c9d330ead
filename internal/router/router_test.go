package router

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nkkko/lista/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fixed ID generation for testing
func init() {
	var counter int64
	generateID = func() string {
		return fmt.Sprintf("test-binding-id-%d", atomic.AddInt64(&counter, 1))
	}
}

func envelope(channel, event string) *proto.Envelope {
	return &proto.Envelope{Channel: channel, Event: event, Data: []byte(`{}`)}
}

func TestRouterSubscribeRefCounts(t *testing.T) {
	router := NewRouter()

	assert.True(t, router.Subscribe("shopping-list-1"))
	assert.False(t, router.Subscribe("shopping-list-1"))
	assert.Equal(t, 2, router.Refs("shopping-list-1"))

	assert.False(t, router.Unsubscribe("shopping-list-1"))
	assert.Equal(t, 1, router.Refs("shopping-list-1"))

	assert.True(t, router.Unsubscribe("shopping-list-1"))
	assert.Equal(t, 0, router.Refs("shopping-list-1"))
	assert.Empty(t, router.Channels())
}

func TestRouterUnsubscribeUnknownChannel(t *testing.T) {
	router := NewRouter()

	assert.False(t, router.Unsubscribe("never-subscribed"))
	assert.False(t, router.Unsubscribe("never-subscribed"))
}

func TestRouterBindRequiresSubscription(t *testing.T) {
	router := NewRouter()

	_, err := router.Bind("shopping-list-1", proto.EventListDeleted, func(*proto.Envelope) {})
	assert.ErrorIs(t, err, ErrNotSubscribed)
}

func TestRouterRoute(t *testing.T) {
	router := NewRouter()
	router.Subscribe("shopping-list-1")
	router.Subscribe("shopping-list-2")

	var got []string
	var mu sync.Mutex
	record := func(env *proto.Envelope) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, env.Channel+"/"+env.Event)
	}

	_, err := router.Bind("shopping-list-1", proto.EventListDeleted, record)
	require.NoError(t, err)
	_, err = router.Bind("shopping-list-2", proto.EventListUpdated, record)
	require.NoError(t, err)

	assert.Equal(t, 1, router.Route(envelope("shopping-list-1", proto.EventListDeleted)))
	assert.Equal(t, 0, router.Route(envelope("shopping-list-1", proto.EventListUpdated)))
	assert.Equal(t, 1, router.Route(envelope("shopping-list-2", proto.EventListUpdated)))
	assert.Equal(t, 0, router.Route(envelope("shopping-list-3", proto.EventListDeleted)))
	assert.Equal(t, 0, router.Route(nil))

	assert.Equal(t, []string{
		"shopping-list-1/" + proto.EventListDeleted,
		"shopping-list-2/" + proto.EventListUpdated,
	}, got)
}

func TestRouterMultipleHandlersSameEvent(t *testing.T) {
	router := NewRouter()
	router.Subscribe("user-lists-7")
	router.Subscribe("user-lists-7")

	var calls int32
	for i := 0; i < 2; i++ {
		_, err := router.Bind("user-lists-7", proto.EventShareUpdate, func(*proto.Envelope) {
			atomic.AddInt32(&calls, 1)
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, router.Route(envelope("user-lists-7", proto.EventShareUpdate)))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRouterNoDeliveryAfterUnbind(t *testing.T) {
	router := NewRouter()
	router.Subscribe("shopping-list-1")

	var calls int32
	id, err := router.Bind("shopping-list-1", proto.EventListDeleted, func(*proto.Envelope) {
		atomic.AddInt32(&calls, 1)
	})
	require.NoError(t, err)

	router.Route(envelope("shopping-list-1", proto.EventListDeleted))
	assert.True(t, router.Unbind(id))
	assert.False(t, router.Unbind(id))

	router.Route(envelope("shopping-list-1", proto.EventListDeleted))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRouterLastUnsubscribeDropsBindings(t *testing.T) {
	router := NewRouter()
	router.Subscribe("shopping-list-1")

	id, err := router.Bind("shopping-list-1", proto.EventListDeleted, func(*proto.Envelope) {
		t.Fatal("handler invoked after channel was released")
	})
	require.NoError(t, err)

	assert.True(t, router.Unsubscribe("shopping-list-1"))
	assert.False(t, router.Unbind(id))

	router.Subscribe("shopping-list-1")
	assert.Equal(t, 0, router.Route(envelope("shopping-list-1", proto.EventListDeleted)))
}

func TestRouterHandlerMayUnbindItself(t *testing.T) {
	router := NewRouter()
	router.Subscribe("shopping-list-1")

	var id string
	var calls int32
	id, err := router.Bind("shopping-list-1", proto.EventListDeleted, func(*proto.Envelope) {
		atomic.AddInt32(&calls, 1)
		router.Unbind(id)
	})
	require.NoError(t, err)

	router.Route(envelope("shopping-list-1", proto.EventListDeleted))
	router.Route(envelope("shopping-list-1", proto.EventListDeleted))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRouterChannelsSorted(t *testing.T) {
	router := NewRouter()
	router.Subscribe("user-lists-1")
	router.Subscribe("shopping-list-2")
	router.Subscribe("shopping-list-1")

	assert.Equal(t, []string{"shopping-list-1", "shopping-list-2", "user-lists-1"}, router.Channels())
}

func TestRouterStart(t *testing.T) {
	router := NewRouter()
	router.Subscribe("shopping-list-1")

	received := make(chan *proto.Envelope, 1)
	_, err := router.Bind("shopping-list-1", proto.EventListUpdated, func(env *proto.Envelope) {
		received <- env
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	envelopes := make(chan *proto.Envelope, 10)
	done := make(chan error, 1)
	go func() {
		done <- router.Start(ctx, envelopes)
	}()

	envelopes <- envelope("shopping-list-1", proto.EventListUpdated)

	select {
	case env := <-received:
		assert.Equal(t, proto.EventListUpdated, env.Event)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for envelope")
	}

	cancel()
	select {
	case err := <-done:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("Router did not stop")
	}
}

func TestRouterStartStopsOnClosedStream(t *testing.T) {
	router := NewRouter()

	envelopes := make(chan *proto.Envelope)
	close(envelopes)

	assert.NoError(t, router.Start(context.Background(), envelopes))
}

func TestRouterShutdown(t *testing.T) {
	router := NewRouter()
	router.Subscribe("shopping-list-1")
	router.Subscribe("user-lists-1")

	_, err := router.Bind("shopping-list-1", proto.EventListDeleted, func(*proto.Envelope) {})
	require.NoError(t, err)

	require.NoError(t, router.Shutdown(context.Background()))

	assert.Empty(t, router.Channels())
	assert.Equal(t, 0, router.Route(envelope("shopping-list-1", proto.EventListDeleted)))
}

func TestRouterConcurrentAccess(t *testing.T) {
	router := NewRouter()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			channel := fmt.Sprintf("shopping-list-%d", n%4)
			router.Subscribe(channel)
			id, err := router.Bind(channel, proto.EventListDeleted, func(*proto.Envelope) {})
			if err == nil {
				router.Route(envelope(channel, proto.EventListDeleted))
				router.Unbind(id)
			}
			router.Unsubscribe(channel)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, router.Channels())
}
