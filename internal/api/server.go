package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"ict-analyzer/internal/binance"
	"ict-analyzer/internal/confluence"
	"ict-analyzer/internal/database"
)

// RateLimiter provides simple in-memory sliding-window rate limiting per
// key. Analysis calls fan out to the Binance REST API, so unthrottled
// clients could trip exchange bans.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter allows limit requests per key within the window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks whether a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	windowStart := time.Now().Add(-r.window)

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

	r.requests[key] = append(recent, time.Now())
	return true
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string
	Port           int
	ProductionMode bool
	AllowedOrigins []string
}

// AnalysisParams names the three frame intervals and the fetch depth used
// for every analysis call.
type AnalysisParams struct {
	HTFInterval string
	ITFInterval string
	LTFInterval string
	KlineLimit  int
}

// Server is the HTTP surface over the confluence engine. The repository
// and JWT manager are optional: without a repository snapshots are not
// journaled, and without a JWT manager the API is open.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	engine      *confluence.Engine
	source      binance.KlineSource
	repo        *database.Repository
	params      AnalysisParams
	config      ServerConfig
	rateLimiter *RateLimiter
	logger      zerolog.Logger
}

// NewServer wires routes and middleware.
func NewServer(
	config ServerConfig,
	params AnalysisParams,
	engine *confluence.Engine,
	source binance.KlineSource,
	repo *database.Repository,
	jwtManager *JWTManager,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		engine:      engine,
		source:      source,
		repo:        repo,
		params:      params,
		config:      config,
		rateLimiter: NewRateLimiter(60, time.Minute),
		logger:      logger.With().Str("component", "api").Logger(),
	}

	server.setupRoutes(jwtManager)
	return server
}

func (s *Server) setupRoutes(jwtManager *JWTManager) {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	if jwtManager != nil {
		api.Use(authMiddleware(jwtManager))
	}
	api.Use(s.rateLimitMiddleware())
	{
		api.POST("/analyze", s.handleAnalyze)
		api.GET("/analysis/:symbol", s.handleGetLatestAnalysis)
		api.GET("/analysis/:symbol/history", s.handleGetAnalysisHistory)
		api.GET("/entry-zones/:symbol", s.handleGetEntryZones)
	}
}

// rateLimitMiddleware throttles by route path; every analysis route ends
// up calling Binance.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "too many requests to this endpoint",
				"path":    path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Start blocks serving HTTP until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	dbStatus := "disabled"
	if s.repo != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		dbStatus = "healthy"
		if err := s.repo.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbStatus,
	})
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}
