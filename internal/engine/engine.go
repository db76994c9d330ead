// Package engine runs the dev backend: the content API and the push service
// over one badger store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/nkkko/lista/internal/api/chi"
	"github.com/nkkko/lista/internal/api/content"
	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/notifier"
	"github.com/nkkko/lista/internal/storage"
	"github.com/nkkko/lista/internal/telemetry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config contains engine configuration parameters
type Config struct {
	Storage   storage.Config
	API       chi.Config
	Push      notifier.Config
	Telemetry telemetry.Config

	// Catalog products created on start when missing
	SeedProducts []string
}

// DefaultProducts is the catalog a fresh dev backend starts with
var DefaultProducts = []string{
	"Apples", "Bananas", "Bread", "Butter", "Cheese", "Coffee", "Eggs",
	"Milk", "Onions", "Pasta", "Potatoes", "Rice", "Tomatoes", "Yogurt",
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Storage:      storage.DefaultConfig(),
		API:          chi.DefaultConfig(),
		Push:         notifier.DefaultConfig(),
		Telemetry:    telemetry.DefaultConfig(),
		SeedProducts: DefaultProducts,
	}
}

// Engine is the main coordinator of the dev backend components
type Engine struct {
	config   Config
	storage  storage.Storage
	content  *content.Store
	notifier *notifier.Notifier
	api      *chi.ChiAPI
	logger   zerolog.Logger

	telemetryFn telemetry.ShutdownFunc
	closeOnce   sync.Once
}

// New opens the store and builds every component. Nothing listens until Start or Serve.
func New(config Config) (*Engine, error) {
	store, err := storage.NewStorage(config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	push := notifier.NewNotifier(config.Push)
	cms := content.NewStore(store)

	return &Engine{
		config:   config,
		storage:  store,
		content:  cms,
		notifier: push,
		api:      chi.NewChiAPI(config.API, cms, push),
		logger:   logging.Component("engine"),
	}, nil
}

// Content returns the resource store behind the API
func (e *Engine) Content() *content.Store {
	return e.content
}

// Notifier returns the push service
func (e *Engine) Notifier() *notifier.Notifier {
	return e.notifier
}

// Start listens on the configured addresses and runs until ctx is cancelled
func (e *Engine) Start(ctx context.Context) error {
	apiLn, err := net.Listen("tcp", e.config.API.Addr)
	if err != nil {
		e.close(context.Background())
		return fmt.Errorf("failed to listen for API: %w", err)
	}
	pushLn, err := net.Listen("tcp", e.config.Push.Addr)
	if err != nil {
		_ = apiLn.Close()
		e.close(context.Background())
		return fmt.Errorf("failed to listen for push service: %w", err)
	}
	return e.Serve(ctx, apiLn, pushLn)
}

// Serve runs the API on apiLn and the push service on pushLn until ctx is
// cancelled or either fails. The store is closed on return.
func (e *Engine) Serve(ctx context.Context, apiLn, pushLn net.Listener) error {
	e.logger.Info().Msg("Starting lista dev backend")
	defer e.close(context.Background())

	telShutdown, err := telemetry.Setup(ctx, e.config.Telemetry)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to set up telemetry, continuing without it")
	} else {
		e.telemetryFn = telShutdown
	}

	if len(e.config.SeedProducts) > 0 {
		added, err := e.content.Seed(ctx, e.config.SeedProducts)
		if err != nil {
			_ = apiLn.Close()
			_ = pushLn.Close()
			return fmt.Errorf("failed to seed products: %w", err)
		}
		if added > 0 {
			e.logger.Info().Int("count", added).Msg("Seeded product catalog")
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.notifier.Serve(ctx, pushLn)
	})

	g.Go(func() error {
		return e.api.Serve(ctx, apiLn)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("error running engine: %w", err)
	}

	e.logger.Info().Msg("Lista dev backend shut down successfully")
	return nil
}

// close releases the store and flushes telemetry once
func (e *Engine) close(ctx context.Context) {
	e.closeOnce.Do(func() {
		if err := e.notifier.Shutdown(); err != nil {
			e.logger.Error().Err(err).Msg("Failed to shut down push service")
		}

		if err := e.storage.Close(); err != nil {
			e.logger.Error().Err(err).Msg("Failed to close storage")
		}

		if e.telemetryFn != nil {
			if err := e.telemetryFn(ctx); err != nil {
				e.logger.Error().Err(err).Msg("Failed to shut down telemetry")
			}
		}
	})
}
