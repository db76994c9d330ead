package app

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nkkko/lista/internal/engine"
	"github.com/nkkko/lista/internal/realtime"
	"github.com/nkkko/lista/internal/session"
	"github.com/nkkko/lista/internal/store"
	"github.com/nkkko/lista/pkg/client"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventually = 5 * time.Second

type backend struct {
	engine  *engine.Engine
	apiURL  string
	pushURL string
}

func startBackend(t *testing.T) *backend {
	t.Helper()

	config := engine.DefaultConfig()
	config.Storage.InMemory = true
	e, err := engine.New(config)
	require.NoError(t, err)

	apiLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	pushLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Serve(ctx, apiLn, pushLn)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	b := &backend{
		engine:  e,
		apiURL:  "http://" + apiLn.Addr().String(),
		pushURL: "ws://" + pushLn.Addr().String() + "/ws",
	}
	require.Eventually(t, func() bool {
		_, _, err := client.New(b.apiURL).DevLogin(ctx, "probe", "")
		return err == nil
	}, eventually, 20*time.Millisecond)
	return b
}

// login signs a fresh app in as name
func (b *backend) login(t *testing.T, name string) *App {
	t.Helper()
	ctx := context.Background()

	token, _, err := client.New(b.apiURL).DevLogin(ctx, name, "")
	require.NoError(t, err)

	rt := realtime.DefaultConfig()
	rt.URL = b.pushURL
	rt.Linger = 20 * time.Millisecond
	rt.ReconnectInitial = 20 * time.Millisecond
	rt.PingInterval = 0

	a, err := New(Config{
		BaseURL:       b.apiURL,
		Realtime:      rt,
		Session:       session.Config{InMemory: true},
		Notifications: store.DefaultNotificationConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.Login(ctx, token))
	a.settle(t)
	return a
}

// settle waits for queued subscriptions to reach the push service
func (a *App) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	require.NoError(t, a.Settle(ctx))
}

func (b *backend) waitSubscribed(t *testing.T, channel string, count int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return b.engine.Notifier().Subscribers(channel) >= count
	}, eventually, 10*time.Millisecond, "subscribers of %s", channel)
}

func titleOf(a *App, id proto.ID) string {
	l, ok := a.Lists.Get(id)
	if !ok {
		return ""
	}
	return l.Title
}

func TestAppSharedListStaysInSync(t *testing.T) {
	b := startBackend(t)
	ctx := context.Background()

	ana := b.login(t, "Ana")
	bo := b.login(t, "Bo")

	list, err := ana.Lists.Create(ctx, "Groceries")
	require.NoError(t, err)

	_, err = bo.Lists.AcceptShare(ctx, list.ShareCode)
	require.NoError(t, err)
	bo.settle(t)
	require.True(t, bo.Lists.Contains(list.Id))

	b.waitSubscribed(t, proto.UserChannel(bo.User.ID()), 1)
	b.waitSubscribed(t, proto.ListChannel(list.Id), 2)

	require.NoError(t, ana.Lists.Rename(ctx, list.Id, "Weekly groceries"))
	assert.Eventually(t, func() bool {
		return titleOf(bo, list.Id) == "Weekly groceries"
	}, eventually, 10*time.Millisecond, "summary reaches the other member")

	assert.Eventually(t, func() bool {
		n, ok := bo.Notifications.Current()
		return ok && strings.Contains(n.Message, "renamed")
	}, eventually, 10*time.Millisecond, "other member is notified")

	require.NoError(t, bo.OpenList(ctx, list.Id))
	bo.settle(t)
	b.waitSubscribed(t, proto.ListChannel(list.Id), 2)

	milk, err := ana.Gateway.SearchProducts(ctx, "milk")
	require.NoError(t, err)
	require.NotEmpty(t, milk)
	_, err = ana.Gateway.AddProductToList(ctx, list.Id, &proto.AddProductRequest{ProductId: milk[0].Id, Quantity: 2})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		items := bo.Products.Items()
		return len(items) == 1 && items[0].ProductId == milk[0].Id
	}, eventually, 10*time.Millisecond, "open list reloads after another member adds a product")

	assert.Eventually(t, func() bool {
		l, ok := bo.Lists.Get(list.Id)
		return ok && l.ProductCount == 1
	}, eventually, 10*time.Millisecond, "tile counters follow")

	var mu sync.Mutex
	var redirected proto.ID
	bo.OnRedirect(func(id proto.ID) {
		mu.Lock()
		redirected = id
		mu.Unlock()
	})

	require.NoError(t, ana.Lists.Delete(ctx, list.Id))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return redirected == list.Id
	}, eventually, 10*time.Millisecond, "deleting the open list sends the member home")
	assert.Eventually(t, func() bool {
		return !bo.Lists.Contains(list.Id)
	}, eventually, 10*time.Millisecond)
	assert.True(t, bo.Products.ActiveListID().IsZero())
}

func TestAppKeepsLatestListSetWhileWorkerIsBusy(t *testing.T) {
	b := startBackend(t)
	ctx := context.Background()

	ana := b.login(t, "Ana")
	list, err := ana.Lists.Create(ctx, "Groceries")
	require.NoError(t, err)
	require.NoError(t, ana.OpenList(ctx, list.Id))
	ana.settle(t)

	// Park the worker inside the redirect callback
	entered := make(chan struct{})
	release := make(chan struct{})
	ana.OnRedirect(func(proto.ID) {
		close(entered)
		<-release
	})
	ana.leaveActive(list.Id)
	<-entered

	for i := 0; i < 40; i++ {
		ana.Lists.ApplySummary(&proto.ListSummaryUpdated{ListId: list.Id, Title: "Groceries"})
	}
	fresh, err := ana.Lists.Create(ctx, "Fresh list")
	require.NoError(t, err)

	close(release)
	ana.settle(t)

	assert.Equal(t, len(ana.Lists.Lists()), ana.listsDeleted.Watched())
	assert.Equal(t, 2, ana.listsDeleted.Watched())
	b.waitSubscribed(t, proto.ListChannel(fresh.Id), 1)
}

func TestAppRemovedMemberLosesList(t *testing.T) {
	b := startBackend(t)
	ctx := context.Background()

	ana := b.login(t, "Ana")
	bo := b.login(t, "Bo")

	list, err := ana.Lists.Create(ctx, "Party")
	require.NoError(t, err)
	_, err = bo.Lists.AcceptShare(ctx, list.ShareCode)
	require.NoError(t, err)
	require.NoError(t, ana.Lists.Fetch(ctx))
	bo.settle(t)
	b.waitSubscribed(t, proto.UserChannel(bo.User.ID()), 1)

	require.NoError(t, ana.Lists.RemoveMember(ctx, list.Id, bo.User.ID()))

	assert.Eventually(t, func() bool {
		return !bo.Lists.Contains(list.Id)
	}, eventually, 10*time.Millisecond, "removed member drops the list")

	l, ok := ana.Lists.Get(list.Id)
	require.True(t, ok)
	for _, m := range l.SharedWith {
		assert.NotEqual(t, bo.User.ID(), m.Id)
	}
}

func TestAppRestoresSessionAndOpenList(t *testing.T) {
	b := startBackend(t)
	ctx := context.Background()

	token, _, err := client.New(b.apiURL).DevLogin(ctx, "Cy", "")
	require.NoError(t, err)

	rt := realtime.DefaultConfig()
	rt.URL = b.pushURL
	rt.Linger = 0

	dir := t.TempDir()
	config := Config{
		BaseURL:  b.apiURL,
		Realtime: rt,
		Session:  session.Config{DataDir: dir},
	}

	first, err := New(config)
	require.NoError(t, err)
	require.NoError(t, first.Login(ctx, token))
	list, err := first.Lists.Create(ctx, "Hardware")
	require.NoError(t, err)
	require.NoError(t, first.OpenList(ctx, list.Id))
	require.NoError(t, first.Close())

	second, err := New(config)
	require.NoError(t, err)
	defer second.Close()

	ok, err := second.Start(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Cy", second.User.Name())
	assert.True(t, second.Lists.Contains(list.Id))
	assert.Equal(t, list.Id, second.Products.ActiveListID())

	require.NoError(t, second.Logout(ctx))
	assert.Empty(t, second.Lists.Lists())
	assert.False(t, second.User.LoggedIn())
}

func TestAppStartWithoutSession(t *testing.T) {
	rt := realtime.DefaultConfig()
	a, err := New(Config{
		BaseURL:  "http://127.0.0.1:1",
		Realtime: rt,
		Session:  session.Config{InMemory: true},
	})
	require.NoError(t, err)
	defer a.Close()

	ok, err := a.Start(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	err = a.OpenList(context.Background(), 9)
	assert.ErrorIs(t, err, store.ErrUnknownList)
}
