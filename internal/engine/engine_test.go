package engine

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/nkkko/lista/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// running is a started dev backend
type running struct {
	engine  *Engine
	apiURL  string
	pushURL string
	cancel  context.CancelFunc
	done    chan error
}

func startEngine(t *testing.T, config Config) *running {
	t.Helper()

	config.Storage.InMemory = true
	e, err := New(config)
	require.NoError(t, err)

	apiLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	pushLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{
		engine:  e,
		apiURL:  "http://" + apiLn.Addr().String(),
		pushURL: "http://" + pushLn.Addr().String(),
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	go func() { r.done <- e.Serve(ctx, apiLn, pushLn) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
			t.Error("engine did not stop")
		}
	})

	require.Eventually(t, func() bool {
		return healthy(r.apiURL) && healthy(r.pushURL)
	}, 5*time.Second, 20*time.Millisecond)
	return r
}

func healthy(base string) bool {
	resp, err := http.Get(base + "/healthz")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func TestEngineServesAPIAndSeedsCatalog(t *testing.T) {
	r := startEngine(t, DefaultConfig())
	ctx := context.Background()

	c := client.New(r.apiURL)
	token, user, err := c.DevLogin(ctx, "Ana", "ana@example.test")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, "Ana", user.Name)

	products, err := c.SearchProducts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, products, len(DefaultProducts))

	list, err := c.CreateList(ctx, "Weekend")
	require.NoError(t, err)
	assert.Equal(t, "Weekend", list.Title)

	lists, err := c.ListLists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, list.Id, lists[0].Id)
}

func TestEngineSeedIsIdempotent(t *testing.T) {
	r := startEngine(t, DefaultConfig())

	added, err := r.engine.Content().Seed(context.Background(), DefaultProducts)
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestEngineStopsOnCancel(t *testing.T) {
	config := DefaultConfig()
	config.SeedProducts = nil
	r := startEngine(t, config)

	r.cancel()
	select {
	case err := <-r.done:
		assert.NoError(t, err)
		r.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}

	assert.False(t, healthy(r.apiURL))
}

func TestEngineStartFailsOnBusyAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	config := DefaultConfig()
	config.Storage.InMemory = true
	config.API.Addr = ln.Addr().String()
	e, err := New(config)
	require.NoError(t, err)

	err = e.Start(context.Background())
	assert.Error(t, err)
}
