package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"institutional-trading-bot/internal/bot"
	"institutional-trading-bot/internal/cache"
	"institutional-trading-bot/internal/events"
)

// InstanceFactory builds a stopped instance for the given user and bot. The
// server owns lifecycle; main owns wiring.
type InstanceFactory func(userID, botID string) (*bot.Instance, error)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int
	Host            string
	AllowedOrigins  []string
	ReadTimeoutSec  int
	WriteTimeoutSec int
}

// Server is the control API: bot lifecycle, gate inspection and risk
// controls.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	registry   *bot.Registry
	factory    InstanceFactory
	stateCache *cache.StateCache
	eventBus   *events.Bus
	jwtManager *JWTManager // nil disables auth
	log        zerolog.Logger
}

// NewServer creates the API server. jwtManager and stateCache may be nil.
func NewServer(
	config ServerConfig,
	registry *bot.Registry,
	factory InstanceFactory,
	stateCache *cache.StateCache,
	eventBus *events.Bus,
	jwtManager *JWTManager,
	logger zerolog.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) == 1 && config.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:     router,
		config:     config,
		registry:   registry,
		factory:    factory,
		stateCache: stateCache,
		eventBus:   eventBus,
		jwtManager: jwtManager,
		log:        logger.With().Str("component", "api").Logger(),
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.Use(authMiddleware(s.jwtManager))
	{
		api.POST("/bot/start", s.handleBotStart)
		api.POST("/bot/stop", s.handleBotStop)
		api.GET("/bot/status", s.handleBotStatus)
		api.GET("/bot/institutional", s.handleInstitutionalState)
		api.GET("/risk/status", s.handleRiskStatus)
		api.POST("/risk/reset", s.handleRiskReset)
	}
}

// Start runs the HTTP server. Blocks until shutdown or listen failure.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeoutSec) * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("api server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

type botRequest struct {
	BotID string `json:"bot_id"`
}

func (s *Server) handleBotStart(c *gin.Context) {
	userID := userIDFrom(c)

	var req botRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.BotID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bot_id is required"})
		return
	}

	inst, created, err := s.registry.GetOrCreate(userID, req.BotID, func() (*bot.Instance, error) {
		return s.factory(userID, req.BotID)
	})
	if err != nil {
		s.log.Error().Err(err).Str("bot_id", req.BotID).Msg("could not build bot instance")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Start is serialized on the instance itself: when two requests race on
	// one key they share the instance and only one Start succeeds.
	if err := inst.Start(c.Request.Context()); err != nil {
		if created {
			s.registry.Remove(userID, req.BotID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "started", "bot_id": req.BotID})
}

func (s *Server) handleBotStop(c *gin.Context) {
	userID := userIDFrom(c)

	var req botRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.BotID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bot_id is required"})
		return
	}

	inst := s.registry.Get(userID, req.BotID)
	if inst == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
		return
	}

	inst.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopped", "bot_id": req.BotID})
}

func (s *Server) handleBotStatus(c *gin.Context) {
	userID := userIDFrom(c)
	botID := c.Query("bot_id")

	if botID != "" {
		inst := s.registry.Get(userID, botID)
		if inst == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
			return
		}
		c.JSON(http.StatusOK, inst.Status())
		return
	}

	statuses := make([]bot.Status, 0)
	for _, inst := range s.registry.List() {
		st := inst.Status()
		if st.UserID == userID {
			statuses = append(statuses, st)
		}
	}
	c.JSON(http.StatusOK, gin.H{"bots": statuses})
}

// handleInstitutionalState returns the gate snapshot: live when the bot is
// running, from the cache otherwise.
func (s *Server) handleInstitutionalState(c *gin.Context) {
	userID := userIDFrom(c)
	botID := c.Query("bot_id")
	if botID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bot_id is required"})
		return
	}

	if inst := s.registry.Get(userID, botID); inst != nil {
		st := inst.Status()
		c.JSON(http.StatusOK, gin.H{"source": "live", "gate": st.Gate})
		return
	}

	if s.stateCache != nil {
		symbol := c.Query("symbol")
		if snap := s.stateCache.Get(c.Request.Context(), userID, botID, symbol); snap != nil {
			c.JSON(http.StatusOK, gin.H{"source": "cache", "gate": snap.Snapshot, "saved_at": snap.SavedAt})
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "no gate state for bot"})
}

func (s *Server) handleRiskStatus(c *gin.Context) {
	userID := userIDFrom(c)
	botID := c.Query("bot_id")
	if botID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bot_id is required"})
		return
	}

	inst := s.registry.Get(userID, botID)
	if inst == nil || inst.Breaker() == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no risk state for bot"})
		return
	}

	c.JSON(http.StatusOK, inst.Breaker().State())
}

// handleRiskReset force-resets the daily breaker. Deliberately heavyweight:
// it exists for operator intervention, not for the trading loop.
func (s *Server) handleRiskReset(c *gin.Context) {
	userID := userIDFrom(c)

	var req botRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.BotID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bot_id is required"})
		return
	}

	inst := s.registry.Get(userID, req.BotID)
	if inst == nil || inst.Breaker() == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no risk state for bot"})
		return
	}

	inst.Breaker().ForceReset(c.Request.Context(), time.Now())
	s.log.Warn().Str("user_id", userID).Str("bot_id", req.BotID).Msg("daily breaker force-reset by operator")
	c.JSON(http.StatusOK, inst.Breaker().State())
}
