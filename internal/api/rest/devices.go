package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tswio/panelcore/internal/device"
	"github.com/tswio/panelcore/internal/protocol"
)

// GET /api/v1/devices
func (s *Server) listDevices(c *gin.Context) {
	connections := s.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"devices": connections,
		"count":   len(connections),
	})
}

// POST /api/v1/devices/scan
func (s *Server) scanDevices(c *gin.Context) {
	if err := s.registry.Scan(); err != nil {
		s.logger.Error("Port scan failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	connections := s.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"devices": connections,
		"count":   len(connections),
	})
}

// POST /api/v1/devices/disconnect
func (s *Server) disconnectDevice(c *gin.Context) {
	var req struct {
		Port string `json:"port" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.registry.Disconnect(req.Port); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "device disconnected"})
}

type inputConfigRequest struct {
	Pin  uint8  `json:"pin"`
	Type string `json:"type" binding:"required,oneof=analog digital"`
}

// POST /api/v1/devices/configuration
func (s *Server) applyConfiguration(c *gin.Context) {
	var req struct {
		Port     string               `json:"port" binding:"required"`
		ConfigID uint32               `json:"config_id" binding:"required"`
		Inputs   []inputConfigRequest `json:"inputs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.registry.Get(req.Port)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	cfg := protocol.ConfigurationApply{ConfigID: req.ConfigID}
	for _, in := range req.Inputs {
		inputType := protocol.InputTypeAnalog
		if in.Type == "digital" {
			inputType = protocol.InputTypeDigital
		}
		cfg.Inputs = append(cfg.Inputs, protocol.InputConfig{Pin: in.Pin, Type: inputType})
	}

	if err := session.ApplyConfiguration(cfg); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, device.ErrNoInputs):
			status = http.StatusBadRequest
		case errors.Is(err, device.ErrNotConnected):
			status = http.StatusConflict
		case errors.Is(err, device.ErrDeviceRejected):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, device.ErrTimeout):
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "configuration stored",
		"config_id": req.ConfigID,
	})
}

// GET /api/v1/devices/inputs?port=...
func (s *Server) getInputValues(c *gin.Context) {
	port := c.Query("port")
	if port == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing port parameter"})
		return
	}

	session, err := s.registry.Get(port)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"port":   port,
		"inputs": session.InputValues(),
	})
}
