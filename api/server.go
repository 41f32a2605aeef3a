// Package api serves address verification and reference data management
// over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/TFMV/avs/internal/config"
	"github.com/TFMV/avs/internal/events"
	"github.com/TFMV/avs/internal/metrics"
	"github.com/TFMV/avs/internal/store"
	"github.com/TFMV/avs/internal/verify"
)

// Deps are the collaborators of the server. Events, Metrics and Logger are
// optional.
type Deps struct {
	Store    store.Store
	Verifier *verify.Service
	Events   events.Publisher
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Server represents the API server
type Server struct {
	router     *mux.Router
	cfg        *config.Config
	store      store.Store
	verifier   *verify.Service
	events     events.Publisher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer creates a new API server and registers its routes
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		cfg:      cfg,
		store:    deps.Store,
		verifier: deps.Verifier,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.registerRoutes()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.API.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.API.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.API.IdleTimeoutSecs) * time.Second,
	}
	return s
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.router.Use(requestID, accessLog(s.logger), recoverer(s.logger), securityHeaders)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	limits := s.cfg.RateLimits
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Verification
	v1.HandleFunc("/auth", s.limit("/api/v1/auth", limits.Auth, s.handleAuth)).Methods(http.MethodGet)
	v1.HandleFunc("/verify", s.limit("/api/v1/verify", limits.Verify,
		s.requireAPIKey(s.handleVerify))).Methods(http.MethodPost)

	// Reference data
	v1.HandleFunc("/addresses", s.limit("/api/v1/addresses", limits.List,
		s.requireAdmin(s.handleListAddresses))).Methods(http.MethodGet)
	create := s.limit("/api/v1/address", limits.Create, s.requireAdmin(s.handleCreateAddress))
	v1.HandleFunc("/address", create).Methods(http.MethodPost)
	v1.HandleFunc("/address/", create).Methods(http.MethodPost)
	v1.HandleFunc("/address/{ref}", s.limit("/api/v1/address/{ref}", limits.Update,
		s.requireAdmin(s.handleUpdateAddress))).Methods(http.MethodPut)
	v1.HandleFunc("/addresses/{id}", s.limit("/api/v1/addresses/{id}", limits.Delete,
		s.requireAdmin(s.handleDeleteAddress))).Methods(http.MethodDelete)
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", zap.String("addr", s.cfg.Addr()), zap.String("store", s.cfg.Store.Driver))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the API server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		loggerFrom(r.Context(), s.logger).Warn("store health check failed", zap.Error(err))
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unavailable",
			"store":     s.cfg.Store.Driver,
			"timestamp": timestamp(),
		})
		return
	}

	// Return health status
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"store":     s.cfg.Store.Driver,
		"timestamp": timestamp(),
	})
}
