// Package server is the HTTP surface of the renderer: host-routed
// storefront pages, theme assets, cache invalidation for theme publishes,
// a health check and the development sync socket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/storefront/internal/logging"
	"github.com/conneroisu/storefront/internal/pipeline"
	"github.com/conneroisu/storefront/internal/rendering"
)

// CartCookie is the cookie holding the visitor's cart token.
const CartCookie = "cart"

// PageRenderer renders a storefront page into a response.
type PageRenderer interface {
	RenderResponse(ctx context.Context, domain, pageType string, params rendering.Params) *pipeline.Response
}

// Invalidator drops everything cached for a store.
type Invalidator interface {
	InvalidateStore(storeID string) int
}

// DomainInvalidator drops the cached store resolution of a host.
type DomainInvalidator interface {
	Invalidate(host string) bool
}

// AssetLoader reads files from a store's theme assets.
type AssetLoader interface {
	LoadAsset(ctx context.Context, storeID, file string) ([]byte, error)
}

// Config holds the listener settings.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AdminToken, when set, is required as a bearer token on /api routes
	// that change state.
	AdminToken string
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server serves storefront traffic.
type Server struct {
	cfg     Config
	pages   PageRenderer
	cache   Invalidator
	assets  AssetLoader
	devSync http.Handler
	domains DomainInvalidator
	logger  logging.Logger
	started time.Time
	handler http.Handler

	mu         sync.Mutex
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = l.WithComponent("server") }
}

// WithDevSync mounts a handler on /dev/sync.
func WithDevSync(h http.Handler) Option {
	return func(s *Server) { s.devSync = h }
}

// WithDomains mounts DELETE /api/domains/{host}/cache for domain changes.
func WithDomains(d DomainInvalidator) Option {
	return func(s *Server) { s.domains = d }
}

// New creates a server.
func New(cfg Config, pages PageRenderer, cache Invalidator, assets AssetLoader, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		pages:   pages,
		cache:   cache,
		assets:  assets,
		logger:  logging.NewNop(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("DELETE /api/stores/{id}/cache", s.requireAdmin(http.HandlerFunc(s.handleInvalidate)))
	mux.HandleFunc("GET /api/stores/{id}/assets/{file...}", s.handleAsset)
	if s.domains != nil {
		mux.Handle("DELETE /api/domains/{host}/cache", s.requireAdmin(http.HandlerFunc(s.handleInvalidateDomain)))
	}
	if s.devSync != nil {
		mux.Handle("GET /dev/sync", s.devSync)
	}
	mux.HandleFunc("GET /", s.handlePage)

	return Chain(mux,
		Recover(s.logger),
		RequestID,
		AccessLog(s.logger),
		SecurityHeaders,
	)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	errc := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info(ctx, "shutting down")
	return srv.Shutdown(ctx)
}
