// Package server exposes the scanner over HTTP and a websocket message feed.
package server

import (
	"context"
	"errors"
	"image"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ericlevine/qrdecode"
	"github.com/ericlevine/qrdecode/internal/cache"
	"github.com/ericlevine/qrdecode/internal/config"
	"github.com/ericlevine/qrdecode/internal/message"
)

// Scanner scans decoded images.
type Scanner interface {
	DecodeImage(ctx context.Context, img image.Image) ([]qrdecode.DecodeResult, error)
}

// Fetcher returns the encoded bytes behind an image reference. Servers facing
// untrusted clients should use one that refuses local files.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Options wire a Server.
type Options struct {
	Config  config.Config
	Scanner Scanner
	Fetcher Fetcher
	// Cache is optional.
	Cache   cache.Store
	Logger  *zap.Logger
	Version string
}

// Server serves /healthz, /metrics, /v1/decode and /v1/messages.
type Server struct {
	cfg      config.Config
	scanner  Scanner
	fetcher  Fetcher
	cache    cache.Store
	adapter  *message.Adapter
	upgrader *websocket.Upgrader
	log      *zap.Logger
	version  string

	router chi.Router
	http   *http.Server
}

// New builds a Server and its routes.
func New(opts Options) *Server {
	s := &Server{
		cfg:     opts.Config,
		scanner: opts.Scanner,
		fetcher: opts.Fetcher,
		cache:   opts.Cache,
		log:     opts.Logger,
		version: opts.Version,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.adapter = message.NewAdapter(refScanner{s}, s.cfg.Reply.Prefix, s.log)
	s.upgrader = newUpgrader(s.cfg.Server.AllowedOrigins)
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(s.log))
	r.Use(recoverer(s.log))
	if len(s.cfg.Server.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Post("/decode", s.handleDecode)
		r.Get("/messages", s.handleMessages)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// refScanner lets the message adapter share the server's cache.
type refScanner struct {
	s *Server
}

func (r refScanner) Decode(ctx context.Context, ref string) ([]qrdecode.DecodeResult, error) {
	data, err := r.s.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	return r.s.decodeBytes(ctx, ref, data)
}
