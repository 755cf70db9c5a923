// Package server assembles the HTTP application: the middleware chain, the route groups,
// the uploads file server and the inline status endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/benvon/formdrop/internal/config"
	"github.com/benvon/formdrop/internal/database"
	"github.com/benvon/formdrop/internal/handlers"
	"github.com/benvon/formdrop/internal/httperr"
	"github.com/benvon/formdrop/internal/middleware"
	"github.com/benvon/formdrop/internal/queue"
	"github.com/benvon/formdrop/internal/services/session"
	"github.com/benvon/formdrop/internal/storage"
	"github.com/benvon/formdrop/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
)

// proxyHops is the number of reverse proxies trusted in production.
const proxyHops = 1

const shutdownTimeout = 30 * time.Second

// Deps are the collaborators the route groups are built from.
type Deps struct {
	Users          database.UserRepositoryInterface
	Submissions    database.SubmissionRepositoryInterface
	Store          handlers.AttachmentStore
	Sessions       *session.Manager
	Publisher      queue.Publisher
	RateLimitStore limiter.Store
	Health         *handlers.HealthChecker
	Logger         *zap.Logger
}

// Server is the configured HTTP application.
type Server struct {
	cfg     *config.Config
	handler http.Handler
	logger  *zap.Logger
}

// New builds the router and middleware chain. It performs no I/O beyond what the
// collaborators in deps already did.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Users == nil || deps.Submissions == nil || deps.Sessions == nil || deps.Store == nil {
		return nil, errors.New("users, submissions, sessions and store are required")
	}
	if deps.Publisher == nil {
		deps.Publisher = queue.NopPublisher{}
	}
	if deps.Health == nil {
		deps.Health = handlers.NewHealthChecker()
	}
	if deps.RateLimitStore == nil {
		store, err := middleware.NewRateLimitStore(nil)
		if err != nil {
			return nil, err
		}
		deps.RateLimitStore = store
	}

	router, err := newRouter(cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:     cfg,
		handler: chain(cfg, router, deps.Logger),
		logger:  deps.Logger,
	}, nil
}

// Handler returns the complete application handler.
func (s *Server) Handler() http.Handler { return s.handler }

func newRouter(cfg *config.Config, deps Deps) (*mux.Router, error) {
	logger := deps.Logger

	r := mux.NewRouter()
	r.NotFoundHandler = httperr.NotFoundHandler(logger)
	r.MethodNotAllowedHandler = httperr.MethodNotAllowedHandler(logger)

	if cfg.OTELEnabled {
		r.Use(telemetry.Middleware(telemetry.ServiceName))
	}

	r.HandleFunc("/healthz", deps.Health.HealthCheck).Methods(http.MethodGet)

	authLimit, err := middleware.RateLimit(deps.RateLimitStore, cfg.AuthRateLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("configure auth rate limit: %w", err)
	}
	authRouter := r.PathPrefix("/api/auth").Subrouter()
	authRouter.Use(authLimit)
	handlers.NewAuthHandler(deps.Users, deps.Sessions, deps.Publisher, logger).RegisterRoutes(authRouter)

	formRouter := r.PathPrefix("/api/form").Subrouter()
	handlers.NewFormHandler(handlers.FormHandlerConfig{
		Submissions:   deps.Submissions,
		Users:         deps.Users,
		Store:         deps.Store,
		Sessions:      deps.Sessions,
		Publisher:     deps.Publisher,
		MaxUploadSize: cfg.MaxUploadSize,
		Logger:        logger,
	}).RegisterRoutes(formRouter)

	r.PathPrefix(storage.URLPrefix).
		Handler(handlers.NewUploadsHandler(cfg.UploadsDir, logger)).
		Methods(http.MethodGet, http.MethodHead)

	if cfg.EnableDemoEndpoints {
		handlers.NewDemoHandler(cfg.Environment, cfg.IsProduction()).RegisterRoutes(r)
	}

	// Preflights from allowed origins are answered by the CORS layer; this covers the rest.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r, nil
}

// chain wraps the router. Outermost first: panic recovery, proxy trust (production),
// logging, audit, security headers, JSON body, URL-encoded body, cookies, CORS.
// Proxy trust sits ahead of the logger so logged addresses are client addresses.
func chain(cfg *config.Config, router http.Handler, logger *zap.Logger) http.Handler {
	layers := []func(http.Handler) http.Handler{
		middleware.Recover(logger),
	}
	if cfg.IsProduction() {
		layers = append(layers, middleware.TrustProxy(proxyHops))
	}
	layers = append(layers,
		middleware.Logging(logger),
		middleware.Audit(logger),
		middleware.SecurityHeaders(cfg.EnableHSTS),
		middleware.JSONBody(cfg.JSONBodyLimit, logger),
		middleware.URLEncodedBody(middleware.DefaultFormBodyLimit, logger),
		middleware.Cookies,
		middleware.CORS(cfg.AllowedOrigins, logger),
	)

	h := router
	for i := len(layers) - 1; i >= 0; i-- {
		h = layers[i](h)
	}
	return h
}

// Run listens on the configured port and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB max header size
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}

	s.logger.Info("server_listening",
		zap.Int("port", s.cfg.Port),
		zap.String("env", s.cfg.Environment),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server_stopped")
	return nil
}
