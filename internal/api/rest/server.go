package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenSimCore/internal/api/websocket"
	"github.com/KevinKickass/OpenSimCore/internal/auth"
	"github.com/KevinKickass/OpenSimCore/internal/config"
	"github.com/KevinKickass/OpenSimCore/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router *gin.Engine
	lm     interfaces.LifecycleManager
	logger *zap.Logger
	server *http.Server
	wsHub  *websocket.Hub
	jwt    *auth.JWTHandler
}

// NewServer builds the REST API. A nil jwt serves every route without
// authentication.
func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, jwt *auth.JWTHandler) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	// Device names contain slashes and travel percent-encoded.
	router.UseRawPath = true
	router.Use(gin.Recovery())

	s := &Server{
		router: router,
		lm:     lm,
		logger: logger,
		wsHub:  wsHub,
		jwt:    jwt,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

// require returns the permission check for p, or a no-op without auth.
func (s *Server) require(p auth.Permission) gin.HandlerFunc {
	if s.jwt == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return auth.RequirePermission(p)
}

func (s *Server) setupRoutes() {
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		// ==================== WEBSOCKET (auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
		}

		api := v1.Group("")
		if s.jwt != nil {
			api.Use(auth.Middleware(s.jwt))
		}

		api.GET("/status", s.require(auth.PermRead), s.getSystemStatus)
		api.GET("/ws/status", s.require(auth.PermRead), s.wsStatus)

		// ==================== DEVICES ====================
		devices := api.Group("/devices")
		{
			devices.GET("", s.require(auth.PermRead), s.listDevices)
			devices.GET("/:name", s.require(auth.PermRead), s.exportDevice)
			devices.GET("/:name/interface", s.require(auth.PermRead), s.getInterface)
			devices.POST("/:name/validate", s.require(auth.PermRead), s.validateDevice)
			devices.GET("/:name/attributes", s.require(auth.PermRead), s.readAttributes)
			devices.GET("/:name/attributes/:attr", s.require(auth.PermRead), s.readAttribute)

			// Writes and commands check the device kind in the handler
			devices.PUT("/:name/attributes/:attr", s.writeAttribute)
			devices.POST("/:name/commands/:cmd", s.runCommand)
		}
	}
}

func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// GET /api/v1/status
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}
