package realtime

import "time"

// Config contains push transport settings
type Config struct {
	// Websocket endpoint of the push service
	URL string

	// Application key sent when connecting
	AppKey string

	// How long an unreferenced connection stays open before it is closed
	Linger time.Duration

	// Reconnect backoff bounds
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// Interval between keepalive pings; zero disables them
	PingInterval time.Duration

	// Buffer size of the inbound envelope stream
	BufferSize int
}

// DefaultConfig returns a default transport configuration
func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8090/ws",
		AppKey:           "lista-dev",
		Linger:           5 * time.Second,
		ReconnectInitial: 500 * time.Millisecond,
		ReconnectMax:     30 * time.Second,
		PingInterval:     25 * time.Second,
		BufferSize:       100,
	}
}
