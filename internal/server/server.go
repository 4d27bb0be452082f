// Package server is the backing store service: it persists classified
// results, serves aggregate statistics and pushes data-updated events.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spacesedan/sentiboard/internal/db"
	"github.com/spacesedan/sentiboard/internal/realtime"
)

const (
	STATS_PATH = "/api/sentiment-stats"
	SAVE_PATH  = "/api/save-sentiment"
	CLEAR_PATH = "/api/clear-data"

	DEFAULT_POLL_WAIT = 25 * time.Second
	MAX_POLL_WAIT     = 60 * time.Second
	PING_INTERVAL     = 20 * time.Second
	MAX_BODY_BYTES    = 64 << 10
)

type Config struct {
	Addr        string
	Repo        db.Repository
	CORSOrigins []string
	// PollWait caps how long a long-poll request parks.
	PollWait time.Duration
	// PingInterval is how often websocket subscribers are pinged; one whose
	// pong does not arrive within the same interval is dropped.
	PingInterval time.Duration
	Metrics      *Metrics
	Fanout       *Fanout
	Publisher    *ResultPublisher
	Logger       *slog.Logger
}

type Server struct {
	repo         db.Repository
	hub          *Hub
	metrics      *Metrics
	fanout       *Fanout
	publisher    *ResultPublisher
	pollWait     time.Duration
	pingInterval time.Duration
	router       *chi.Mux
	server       *http.Server
	log          *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = DEFAULT_POLL_WAIT
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = PING_INTERVAL
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	s := &Server{
		repo:         cfg.Repo,
		hub:          NewHub(cfg.Metrics),
		metrics:      cfg.Metrics,
		fanout:       cfg.Fanout,
		publisher:    cfg.Publisher,
		pollWait:     cfg.PollWait,
		pingInterval: cfg.PingInterval,
		router:       chi.NewRouter(),
		log:          cfg.Logger,
	}
	s.setupMiddleware(cfg.CORSOrigins)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Hub exposes the event hub so a Fanout built after the server can feed it.
func (s *Server) Hub() *Hub { return s.hub }

// SetFanout attaches cross-instance relaying after construction.
func (s *Server) SetFanout(f *Fanout) { s.fanout = f }

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get(STATS_PATH, s.handleStats)
		r.Post(SAVE_PATH, s.handleSave)
		r.Delete(CLEAR_PATH, s.handleClear)
	})

	s.router.Get(realtime.WebSocketPath, s.handleWebSocket)
	s.router.Get(realtime.PollPath, s.handlePoll)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug("[StoreServer] HTTP request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// ListenAndServe blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.log.Info("[StoreServer] Listening", slog.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("[StoreServer] Shutting down")
	return s.server.Shutdown(ctx)
}
