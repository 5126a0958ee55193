package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cadre-oss/statecast/internal/config"
	"github.com/cadre-oss/statecast/internal/event"
	"github.com/cadre-oss/statecast/internal/realtime"
	"github.com/cadre-oss/statecast/internal/store"
	"github.com/cadre-oss/statecast/internal/telemetry"
)

// Deps are the components the server exposes over HTTP.
type Deps struct {
	Hub        *event.Hub
	Translator *event.Translator
	Live       *realtime.Provider
	Store      store.Store
	Metrics    *telemetry.Metrics
	Logger     *telemetry.Logger
}

// Server is the statecast HTTP API.
type Server struct {
	cfg        *config.Config
	hub        *event.Hub
	translator *event.Translator
	store      store.Store
	metrics    *telemetry.Metrics
	broker     *Broker
	logger     *telemetry.Logger
}

// New creates a new server instance.
func New(cfg *config.Config, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = telemetry.NewLogger(false)
	}
	translator := d.Translator
	if translator == nil {
		translator = event.NewTranslator(d.Hub, logger)
	}
	live := d.Live
	if live == nil {
		live = realtime.New(d.Hub)
	}
	return &Server{
		cfg:        cfg,
		hub:        d.Hub,
		translator: translator,
		store:      d.Store,
		metrics:    d.Metrics,
		broker:     NewBroker(live, logger),
		logger:     logger,
	}
}

// Start starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting statecast server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server...")
		s.broker.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/health", s.handleHealth)

	r.Route("/api/state", func(r chi.Router) {
		r.Get("/", s.handleGetState)
		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleClearHistory)
		r.Post("/events", s.handleEmit)
		r.Post("/actions", s.handleAction)
		r.Post("/reset", s.handleReset)
		r.Get("/stream", s.handleStream)
	})

	r.Get("/api/transitions", s.handleTransitions)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	return r
}

// requestLogger logs each request at debug level with its request ID.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
