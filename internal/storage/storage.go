// Package storage provides the local key-value store used for the client
// session jar and the dev content API.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("key not found")

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("storage closed")

// Storage is a byte-oriented key-value store
type Storage interface {
	// Get returns the value stored at key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// List returns every entry whose key starts with prefix, ordered by key
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Increment atomically adds one to the counter at key and returns the new value
	Increment(ctx context.Context, key string) (int64, error)

	// Close flushes and releases the store
	Close() error
}

// Entry is a key with its value
type Entry struct {
	Key   string
	Value []byte
}

// Config contains storage configuration
type Config struct {
	// Base directory for data files
	DataDir string

	// Keep everything in memory; DataDir is ignored
	InMemory bool

	// Read cache settings
	CacheEnabled    bool
	CacheSize       int
	CacheExpiration time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		DataDir:         "./data",
		CacheEnabled:    true,
		CacheSize:       1024,
		CacheExpiration: 30 * time.Second,
	}
}

// GetJSON decodes the JSON value stored at key into v
func GetJSON(ctx context.Context, s Storage, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// SetJSON stores v as JSON at key
func SetJSON(ctx context.Context, s Storage, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
