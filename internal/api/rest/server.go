package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tswio/panelcore/internal/api/websocket"
	"github.com/tswio/panelcore/internal/boards"
	"github.com/tswio/panelcore/internal/config"
	"github.com/tswio/panelcore/internal/device"
	"github.com/tswio/panelcore/internal/events"
	"github.com/tswio/panelcore/internal/firmware"
	"github.com/tswio/panelcore/internal/store"
)

type Server struct {
	router   *gin.Engine
	server   *http.Server
	logger   *zap.Logger
	cfg      *config.Config
	registry *device.Registry
	store    *store.Memory
	boards   *boards.Loader
	firmware *firmware.Manager
	hub      *events.Hub
	wsHub    *websocket.Hub
	sessions *SessionTracker
}

func NewServer(cfg *config.Config, registry *device.Registry, memory *store.Memory, loader *boards.Loader, fw *firmware.Manager, hub *events.Hub, wsHub *websocket.Hub, sessions *SessionTracker, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:   gin.New(),
		logger:   logger,
		cfg:      cfg,
		registry: registry,
		store:    memory,
		boards:   loader,
		firmware: fw,
		hub:      hub,
		wsHub:    wsHub,
		sessions: sessions,
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

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	s.router.GET("/api/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		devices := v1.Group("/devices")
		{
			devices.GET("", s.listDevices)
			devices.POST("/scan", s.scanDevices)
			devices.POST("/disconnect", s.disconnectDevice)
			devices.POST("/configuration", s.applyConfiguration)
			devices.GET("/inputs", s.getInputValues)
		}

		boardDefs := v1.Group("/boards")
		{
			boardDefs.GET("", s.listBoards)
			boardDefs.GET("/:id", s.getBoard)
		}

		cal := v1.Group("/calibration")
		{
			cal.POST("/sessions", s.startCalibration)
			cal.GET("/sessions/:id", s.getCalibration)
			cal.POST("/sessions/:id/advance", s.advanceCalibration)
			cal.POST("/sessions/:id/cancel", s.cancelCalibration)
			cal.GET("/results", s.getCalibrationResult)
		}

		notch := v1.Group("/notch")
		{
			notch.POST("/sessions", s.startNotchSession)
			notch.GET("/sessions/:id", s.getNotchSession)
			notch.POST("/sessions/:id/capture/start", s.startNotchCapture)
			notch.POST("/sessions/:id/capture/complete", s.completeNotch)
			notch.POST("/sessions/:id/capture/reset", s.resetNotchSamples)
			notch.POST("/sessions/:id/goto", s.goToNotch)
			notch.GET("/sessions/:id/preview", s.previewNotchRanges)
			notch.POST("/sessions/:id/save", s.saveNotchRanges)
			notch.POST("/sessions/:id/cancel", s.cancelNotchSession)
			notch.GET("/ranges", s.getNotchRanges)
		}

		fw := v1.Group("/firmware")
		{
			fw.POST("/upload", s.uploadFirmware)
		}

		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.wsStatus)
		}
	}
}

// WebSocket handlers
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
