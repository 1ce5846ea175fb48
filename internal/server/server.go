// Package server provides the HTTP status surface of the operations stack:
// health, watchdog status, account snapshots, host metrics and a live
// status stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/database"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/accounts"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/deals"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/modules/investments"
	"github.com/chavapalmarubin-lab/FIDUS-sub008/internal/watchdog"
)

// Config holds server wiring
type Config struct {
	Log         zerolog.Logger
	DB          *database.DB
	Accounts    *accounts.Repository
	Deals       *deals.Repository
	Investments *investments.Repository
	Status      *watchdog.StatusRepository
	Broadcaster *StatusBroadcaster // optional
	Port        int
	DevMode     bool
}

// Server is the HTTP server
type Server struct {
	router      *chi.Mux
	server      *http.Server
	log         zerolog.Logger
	db          *database.DB
	accounts    *accounts.Repository
	deals       *deals.Repository
	investments *investments.Repository
	status      *watchdog.StatusRepository
	broadcaster *StatusBroadcaster
	startupTime time.Time
}

// New creates the server and mounts all routes
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		db:          cfg.DB,
		accounts:    cfg.Accounts,
		deals:       cfg.Deals,
		investments: cfg.Investments,
		status:      cfg.Status,
		broadcaster: cfg.Broadcaster,
		startupTime: time.Now(),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if !cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/watchdog/status", s.handleWatchdogStatus)
	s.router.Get("/api/accounts", s.handleAccounts)
	s.router.Get("/api/accounts/{account}", s.handleAccount)
	s.router.Get("/api/accounts/{account}/deals", s.handleAccountDeals)
	s.router.Get("/api/investments", s.handleInvestments)
	s.router.Get("/api/system", s.handleSystem)

	if s.broadcaster != nil {
		s.router.Get("/ws/status", s.broadcaster.ServeHTTP)
	}
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	if s.broadcaster != nil {
		s.broadcaster.CloseAll()
	}
	return s.server.Shutdown(ctx)
}
