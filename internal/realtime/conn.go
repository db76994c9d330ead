package realtime

import (
	"context"
	"errors"

	"github.com/nkkko/lista/pkg/proto"
)

var (
	// ErrNotConnected is returned when a frame cannot be written because the transport is down
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrClosed is returned by operations on a closed transport or provider
	ErrClosed = errors.New("realtime: closed")
)

// Conn is a connection to the push service.
//
// Implementations own reconnection: after Dial succeeds they keep the
// connection alive and replay subscribe frames for every channel that is
// still subscribed when the socket comes back.
type Conn interface {
	// Dial opens the connection
	Dial(ctx context.Context) error

	// Send writes a control frame
	Send(ctx context.Context, frame *proto.Frame) error

	// Receive returns the inbound envelope stream. It is closed after Close.
	Receive() <-chan *proto.Envelope

	// Close tears the connection down
	Close() error
}
