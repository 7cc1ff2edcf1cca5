// Package api serves the operator HTTP surface: forced runs, kill switch,
// circuits, trades, locks, health, metrics and a live event stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"regime-trading-bot/config"
	"regime-trading-bot/internal/auth"
	"regime-trading-bot/internal/circuit"
	"regime-trading-bot/internal/events"
	"regime-trading-bot/internal/ledger"
	"regime-trading-bot/internal/lock"
	"regime-trading-bot/internal/pipeline"
	"regime-trading-bot/internal/risk"
)

// RateLimiter provides simple in-memory rate limiting per key
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Runner triggers pipeline runs.
type Runner interface {
	RunNow(ctx context.Context, trigger string) (pipeline.RunSummary, error)
	Last() pipeline.RunSummary
}

// KillSwitch is the operator halt.
type KillSwitch interface {
	State(ctx context.Context) (risk.KillState, error)
	Engage(ctx context.Context, reason, by string) error
	Disengage(ctx context.Context, by string) error
}

// Circuits lists and resets breakers.
type Circuits interface {
	List(ctx context.Context) ([]circuit.Snapshot, error)
	Reset(ctx context.Context, name string) error
}

// Trades is the ledger surface the operator needs.
type Trades interface {
	Get(ctx context.Context, id string) (ledger.Trade, error)
	OpenTrades(ctx context.Context) ([]ledger.Trade, error)
	CloseTrade(ctx context.Context, id string, exit float64) (bool, error)
}

// Locks lists and force-releases coordination locks.
type Locks interface {
	List(ctx context.Context) ([]lock.Lock, error)
	ForceReleaseSymbol(ctx context.Context, symbol string) error
}

// HealthChecker is any dependency that can report liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the server's collaborators. Auth nil disables authentication;
// Metrics nil leaves /metrics unmounted.
type Deps struct {
	Runner     Runner
	KillSwitch KillSwitch
	Circuits   Circuits
	Trades     Trades
	Locks      Locks
	Events     *events.EventBus
	Auth       *auth.Service
	Metrics    http.Handler
	Health     map[string]HealthChecker
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      config.ServerConfig
	deps        Deps
	hub         *WSHub
	rateLimiter *RateLimiter // login and forced-run throttle
	logger      zerolog.Logger
	startedAt   time.Time
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	logger = logger.With().Str("component", "API").Logger()
	router.Use(requestLogger(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitOrigins(cfg.AllowedOrigins)
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:      router,
		config:      cfg,
		deps:        deps,
		rateLimiter: NewRateLimiter(10, time.Minute),
		logger:      logger,
		startedAt:   time.Now(),
	}
	if deps.Events != nil {
		s.hub = InitWebSocket(deps.Events, logger)
	}
	s.setupRoutes()
	return s
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}
	if s.hub != nil {
		s.router.GET("/ws", s.wsAuth(), s.handleWebSocket)
	}

	s.router.POST("/api/auth/login", s.throttle("login"), s.handleLogin)

	api := s.router.Group("/api")
	if s.authEnabled() {
		api.Use(auth.Middleware(s.deps.Auth.JWT()), auth.RequireRole(auth.RoleOperator))
	}
	{
		api.POST("/pipeline/run", s.throttle("run"), s.handleRunNow)
		api.GET("/pipeline/last", s.handleLastRun)

		api.GET("/killswitch", s.handleGetKillSwitch)
		api.PUT("/killswitch", s.handleSetKillSwitch)

		api.GET("/circuits", s.handleListCircuits)
		api.POST("/circuits/:name/reset", s.handleResetCircuit)

		api.GET("/trades/open", s.handleOpenTrades)
		api.GET("/trades/:id", s.handleGetTrade)
		api.POST("/trades/:id/close", s.handleCloseTrade)

		api.GET("/locks", s.handleListLocks)
		api.DELETE("/locks/:symbol", s.handleReleaseLock)
	}
}

func (s *Server) authEnabled() bool {
	return s.deps.Auth != nil && s.deps.Auth.Enabled()
}

func (s *Server) throttle(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(scope + ":" + c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   true,
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Bool("auth", s.authEnabled()).Msg("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	if s.hub != nil {
		s.hub.Stop()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
