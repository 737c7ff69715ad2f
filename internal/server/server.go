// Package server wires the application together: database, session store,
// handlers, middleware, and routes. It is the composition root — all
// dependencies are assembled here, and main.go stays minimal.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/guildhub/internal/auth"
	"github.com/sakif/guildhub/internal/config"
	"github.com/sakif/guildhub/internal/handler"
	"github.com/sakif/guildhub/internal/metrics"
	"github.com/sakif/guildhub/internal/middleware"
	sqliteRepo "github.com/sakif/guildhub/internal/repository/sqlite"
	"github.com/sakif/guildhub/internal/service"
	"github.com/sakif/guildhub/internal/session"
)

// Server owns the HTTP router and the resources released on shutdown: the
// database always, and the Redis session store when one is configured.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	redis  *session.RedisStore // nil when sessions are in-memory
}

// New creates a Server and assembles the full dependency chain:
//
//	sqlite.DB ─→ AuthService ─→ AuthHandler
//	session store (Redis or memory) ─→ session.Manager ─→ auth.Guard
//
// Each layer receives only what it needs — handlers never touch the
// database directly, and the service never sees HTTP.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	var store session.Store
	if cfg.RedisURL != "" {
		redisStore, err := session.NewRedisStore(context.Background(), cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connecting session store: %w", err)
		}
		s.redis = redisStore
		store = redisStore
		logger.Info("sessions backed by Redis")
	} else {
		store = session.NewMemoryStore()
		logger.Warn("REDIS_URL not set — sessions are in-memory and lost on restart")
	}

	if err := s.setupRoutes(store); err != nil {
		s.closeResources()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware, wires handlers, and registers routes.
//
//	GET    /                       landing page (flash + signed-in state)
//	GET    /auth/discord/login     redirect to Discord consent
//	GET    /auth/discord/callback  OAuth success path
//	GET    /auth/failure           OAuth failure path
//	POST   /login                  local password sign-in
//	DELETE /logout                 session teardown (POST for HTML forms)
//	GET    /dashboard              signed-in members only
//	GET    /admin                  admins only
//	GET    /metrics                Prometheus scrape endpoint
//
// No site-wide anti-forgery middleware runs on /auth/discord/callback —
// the request originates at Discord; the OAuth state cookie is its
// protection instead.
func (s *Server) setupRoutes(store session.Store) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	sessions := session.NewManager(store, s.config.SessionTTL)
	m := metrics.New(prometheus.DefaultRegisterer)

	svc := service.NewAuthService(s.db, auth.NewPasswordService(), m, s.logger)
	guard := auth.NewGuard(sessions, s.db, s.logger)

	discord := auth.NewDiscordProvider(
		s.config.DiscordClientID,
		s.config.DiscordClientSecret,
		s.config.DiscordCallbackURL,
	)

	authHandler := handler.NewAuthHandler(discord, svc, sessions, m, s.logger)
	pages, err := handler.NewPageHandler(s.config.TemplateDir, s.db, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}

	s.router.Group(func(r chi.Router) {
		r.Use(guard.OptionalUser)
		r.Get("/", pages.HandleHome)
	})

	s.router.Get("/auth/discord/login", authHandler.HandleLogin)
	s.router.Get("/auth/discord/callback", authHandler.HandleCallback)
	s.router.Get("/auth/failure", authHandler.HandleFailure)
	s.router.Post("/login", authHandler.HandlePasswordLogin)
	s.router.Delete("/logout", authHandler.HandleLogout)
	s.router.Post("/logout", authHandler.HandleLogout)

	s.router.Group(func(r chi.Router) {
		r.Use(guard.RequireUser)
		r.Get("/dashboard", pages.HandleDashboard)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(guard.RequireAdmin)
		r.Get("/admin", pages.HandleAdmin)
	})

	s.router.Handle("/metrics", promhttp.Handler())

	return nil
}

// Start runs the HTTP server and blocks until a shutdown signal or a server
// error. Shutdown order: stop accepting connections, drain in-flight
// requests (30s budget), then release the database and session store.
func (s *Server) Start() error {
	defer s.closeResources()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) closeResources() {
	if s.redis != nil {
		s.redis.Close()
	}
	s.db.Close()
}
