package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Ensure BadgerStorage implements Storage
var _ Storage = (*BadgerStorage)(nil)

// BadgerStorage is a Storage backed by Badger with an optional read cache
type BadgerStorage struct {
	config  Config
	db      *badger.DB
	cache   *Cache
	counter sync.Mutex
	closed  atomic.Bool
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewStorage opens a Badger-backed store
func NewStorage(config Config) (*BadgerStorage, error) {
	logger := logging.Component("storage")

	defaults := DefaultConfig()
	if config.CacheSize <= 0 {
		config.CacheSize = defaults.CacheSize
	}
	if config.CacheExpiration <= 0 {
		config.CacheExpiration = defaults.CacheExpiration
	}

	s := &BadgerStorage{
		config:  config,
		metrics: metrics.GetMetrics(),
		logger:  logger,
	}

	if err := s.initBadger(); err != nil {
		return nil, err
	}

	if config.CacheEnabled {
		cache, err := NewCache(config.CacheSize, config.CacheExpiration)
		if err != nil {
			s.db.Close()
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		s.cache = cache
		s.logger.Debug().
			Int("cache_size", config.CacheSize).
			Dur("cache_expiration", config.CacheExpiration).
			Msg("Cache initialized")
	}

	return s, nil
}

// initBadger opens the Badger database
func (s *BadgerStorage) initBadger() error {
	var options badger.Options
	if s.config.InMemory {
		options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dbPath := filepath.Join(s.config.DataDir, "badger")
		if err := os.MkdirAll(dbPath, 0755); err != nil {
			return fmt.Errorf("failed to create badger directory: %w", err)
		}
		options = badger.DefaultOptions(dbPath)
	}
	options = options.WithLoggingLevel(badger.WARNING).WithLogger(nil)

	db, err := badger.Open(options)
	if err != nil {
		return fmt.Errorf("failed to open Badger: %w", err)
	}

	s.db = db
	return nil
}

// observe records the outcome of an operation
func (s *BadgerStorage) observe(op string, err error) {
	success := "true"
	if err != nil && !errors.Is(err, ErrNotFound) {
		success = "false"
	}
	s.metrics.StorageOperations.WithLabelValues(op, success).Inc()
}

func (s *BadgerStorage) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Get returns the value stored at key
func (s *BadgerStorage) Get(ctx context.Context, key string) (value []byte, err error) {
	timer := prometheus.NewTimer(s.metrics.StorageOperationDuration.WithLabelValues("get"))
	defer timer.ObserveDuration()
	defer func() { s.observe("get", err) }()

	if err := s.check(ctx); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cached, found := s.cache.Get(key); found {
			return cached, nil
		}
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(key, value)
	}
	return value, nil
}

// Set stores value at key
func (s *BadgerStorage) Set(ctx context.Context, key string, value []byte) (err error) {
	timer := prometheus.NewTimer(s.metrics.StorageOperationDuration.WithLabelValues("set"))
	defer timer.ObserveDuration()
	defer func() { s.observe("set", err) }()

	if err := s.check(ctx); err != nil {
		return err
	}
	if key == "" {
		return errors.New("empty key")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		if s.cache != nil {
			s.cache.Remove(key)
		}
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	if s.cache != nil {
		s.cache.Set(key, value)
	}
	return nil
}

// Delete removes key
func (s *BadgerStorage) Delete(ctx context.Context, key string) (err error) {
	defer func() { s.observe("delete", err) }()

	if err := s.check(ctx); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Remove(key)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List returns the entries under prefix ordered by key
func (s *BadgerStorage) List(ctx context.Context, prefix string) (entries []Entry, err error) {
	timer := prometheus.NewTimer(s.metrics.StorageOperationDuration.WithLabelValues("list"))
	defer timer.ObserveDuration()
	defer func() { s.observe("list", err) }()

	if err := s.check(ctx); err != nil {
		return nil, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", item.Key(), err)
			}
			entries = append(entries, Entry{Key: string(item.KeyCopy(nil)), Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Increment adds one to the big-endian counter at key
func (s *BadgerStorage) Increment(ctx context.Context, key string) (next int64, err error) {
	defer func() { s.observe("increment", err) }()

	if err := s.check(ctx); err != nil {
		return 0, err
	}

	s.counter.Lock()
	defer s.counter.Unlock()

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		next, err = s.increment(key)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}

	if s.cache != nil {
		s.cache.Remove(key)
	}
	return next, nil
}

// maxConflictRetries bounds retries of a counter transaction that lost a race
const maxConflictRetries = 16

func (s *BadgerStorage) increment(key string) (next int64, err error) {
	err = s.db.Update(func(txn *badger.Txn) error {
		var current int64
		item, err := txn.Get([]byte(key))
		switch {
		case err == nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(raw) != 8 {
				return fmt.Errorf("counter %s holds %d bytes", key, len(raw))
			}
			current = int64(binary.BigEndian.Uint64(raw))
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		next = current + 1
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(next))
		return txn.Set([]byte(key), buf)
	})
	return next, err
}

// Close closes the database; calling it twice is a no-op
func (s *BadgerStorage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.cache != nil {
		s.cache.Clear()
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Error closing Badger database")
		return err
	}
	return nil
}

// Key joins key segments with ':'
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
