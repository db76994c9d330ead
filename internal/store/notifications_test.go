package store

import (
	"sync"
	"testing"
	"time"

	"github.com/nkkko/lista/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifications_ShowAndExpire(t *testing.T) {
	n := NewNotifications(NotificationConfig{InfoTimeout: 20 * time.Millisecond})

	n.Show("hello", proto.NotificationType_INFO, 0)
	current, ok := n.Current()
	require.True(t, ok)
	assert.Equal(t, "hello", current.Message)
	assert.Equal(t, 20*time.Millisecond, current.Timeout)

	require.Eventually(t, func() bool {
		_, ok := n.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestNotifications_NewShowReplacesAndOldTimerDoesNotClear(t *testing.T) {
	n := NewNotifications(DefaultNotificationConfig())

	n.Show("first", proto.NotificationType_ERROR, 30*time.Millisecond)
	n.Show("second", proto.NotificationType_SUCCESS, time.Hour)

	time.Sleep(80 * time.Millisecond)

	current, ok := n.Current()
	require.True(t, ok, "the first timer must not clear the second notification")
	assert.Equal(t, "second", current.Message)
	assert.Equal(t, proto.NotificationType_SUCCESS, current.Type)
}

func TestNotifications_DefaultsAndSticky(t *testing.T) {
	n := NewNotifications(NotificationConfig{})

	n.Show("saved", proto.NotificationType_SUCCESS, 0)
	current, _ := n.Current()
	assert.Equal(t, 3*time.Second, current.Timeout)

	n.Show("untyped", "", 0)
	current, _ = n.Current()
	assert.Equal(t, proto.NotificationType_INFO, current.Type)

	n.Show("sticky", proto.NotificationType_WARNING, -1)
	current, ok := n.Current()
	require.True(t, ok)
	assert.Equal(t, "sticky", current.Message)

	n.Clear()
	_, ok = n.Current()
	assert.False(t, ok)
}

func TestNotifications_Observers(t *testing.T) {
	n := NewNotifications(NotificationConfig{ErrorTimeout: 10 * time.Millisecond})

	var mu sync.Mutex
	var seen []string
	n.OnChange(func(current *proto.Notification) {
		mu.Lock()
		defer mu.Unlock()
		if current == nil {
			seen = append(seen, "<cleared>")
			return
		}
		seen = append(seen, current.Message)
	})

	n.Show("oops", proto.NotificationType_ERROR, 0)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"oops", "<cleared>"}, seen)
	mu.Unlock()

	// Clearing an empty slot notifies nobody
	n.Clear()
	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()
}
