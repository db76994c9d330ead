package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/nkkko/lista/pkg/proto"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory Conn recording the frames it is sent
type fakeConn struct {
	mu       sync.Mutex
	frames   []*proto.Frame
	dials    int
	closed   bool
	sendErr  error
	inbound  chan *proto.Envelope
	closeOne sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan *proto.Envelope, 16)}
}

func (f *fakeConn) Dial(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	return nil
}

func (f *fakeConn) Send(ctx context.Context, frame *proto.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.frames = append(f.frames, frame)
	return f.sendErr
}

func (f *fakeConn) Receive() <-chan *proto.Envelope {
	return f.inbound
}

func (f *fakeConn) Close() error {
	f.closeOne.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.inbound)
	})
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// sent returns "type:channel" for every frame written so far
func (f *fakeConn) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, fr := range f.frames {
		out = append(out, fr.Type+":"+fr.Channel)
	}
	return out
}

// fakeDialer builds fakeConns and remembers them
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) newConn() Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
