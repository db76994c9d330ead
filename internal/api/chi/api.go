// Package chi serves the dev content API: the list, product, share and user
// resources the client gateway talks to, with realtime events published after
// each mutation.
package chi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nkkko/lista/internal/api/content"
	"github.com/nkkko/lista/internal/api/errors"
	"github.com/nkkko/lista/internal/api/response"
	"github.com/nkkko/lista/internal/logging"
	"github.com/nkkko/lista/internal/metrics"
	"github.com/nkkko/lista/internal/telemetry"
	"github.com/nkkko/lista/pkg/proto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Config contains API configuration
type Config struct {
	// Server address
	Addr string

	// Timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// HS256 secret for issued and accepted tokens
	JWTSecret string

	// Lifetime of issued tokens
	TokenTTL time.Duration

	// Service name reported in traces
	ServiceName string
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		JWTSecret:    "change-me-in-production",
		TokenTTL:     30 * 24 * time.Hour,
		ServiceName:  "lista-dev",
	}
}

// ChiAPI handles HTTP endpoints using Chi router
type ChiAPI struct {
	config    Config
	router    *chi.Mux
	server    *http.Server
	content   *content.Store
	publisher Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewChiAPI creates a new API instance. publisher may be nil.
func NewChiAPI(config Config, store *content.Store, publisher Publisher) *ChiAPI {
	defaults := DefaultConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.JWTSecret == "" {
		config.JWTSecret = defaults.JWTSecret
	}
	if config.TokenTTL == 0 {
		config.TokenTTL = defaults.TokenTTL
	}
	if config.ServiceName == "" {
		config.ServiceName = defaults.ServiceName
	}

	a := &ChiAPI{
		config:    config,
		content:   store,
		publisher: publisher,
		metrics:   metrics.GetMetrics(),
		logger:    logging.Component("api"),
	}

	if config.JWTSecret == defaults.JWTSecret {
		a.logger.Warn().Msg("Using the default JWT secret; set server.jwt_secret outside local development")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(telemetry.HTTPMiddleware(config.ServiceName))
	r.Use(logging.HTTPMiddleware())
	r.Use(a.metricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Device-Id", "traceparent"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	a.registerRoutes(r)
	a.router = r

	return a
}

// Handler returns the HTTP handler of the API
func (a *ChiAPI) Handler() http.Handler {
	return a.router
}

// Start listens on the configured address until ctx is cancelled
func (a *ChiAPI) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.config.Addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve runs the API on ln until ctx is cancelled
func (a *ChiAPI) Serve(ctx context.Context, ln net.Listener) error {
	a.server = &http.Server{
		Handler:      a.router,
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		IdleTimeout:  a.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	a.logger.Info().Str("addr", ln.Addr().String()).Msg("API server started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops the API server
func (a *ChiAPI) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down API server")
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}

// registerRoutes sets up all API endpoints
func (a *ChiAPI) registerRoutes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/dev-login", a.handleDevLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)

			r.Get("/users/me", a.handleMe)

			r.Route("/lists", func(r chi.Router) {
				r.Get("/", a.handleListLists)
				r.Post("/", a.handleCreateList)
				r.Post("/reorder", a.handleReorderLists)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", a.handleGetList)
					r.Patch("/", a.handleUpdateList)
					r.Delete("/", a.handleDeleteList)
					r.Post("/copy", a.handleCopyList)
					r.Post("/leave", a.handleLeaveList)
					r.Delete("/members/{userId}", a.handleRemoveMember)

					r.Get("/products", a.handleListProducts)
					r.Post("/products", a.handleAddProduct)
					r.Patch("/products/{productId}", a.handleUpdateListProduct)
					r.Delete("/products/{productId}", a.handleRemoveListProduct)
				})
			})

			r.Post("/shares/accept", a.handleAcceptShare)

			r.Route("/products", func(r chi.Router) {
				r.Get("/", a.handleSearchProducts)
				r.Post("/", a.handleCreateProduct)
				r.Patch("/{id}", a.handleUpdateProduct)
				r.Delete("/{id}", a.handleDeleteProduct)
			})
		})
	})
}

// metricsMiddleware records request counts and latencies by route pattern
func (a *ChiAPI) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil && routeCtx.RoutePattern() != "" {
			route = routeCtx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		a.metrics.APIRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		a.metrics.APIRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// pathID reads a numeric path parameter
func pathID(r *http.Request, name string) (proto.ID, error) {
	id, err := proto.ParseID(chi.URLParam(r, name))
	if err != nil || id.IsZero() {
		return 0, errors.ValidationError("invalid_"+name, "Invalid "+name)
	}
	return id, nil
}

// withList resolves the {id} parameter and the authenticated user before calling fn
func (a *ChiAPI) withList(fn func(w http.ResponseWriter, r *http.Request, user *proto.User, listID proto.ID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listID, err := pathID(r, "id")
		if err != nil {
			response.Error(w, r, err)
			return
		}
		fn(w, r, UserFromContext(r.Context()), listID)
	}
}
