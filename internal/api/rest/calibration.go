package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tswio/panelcore/internal/calibration"
)

// POST /api/v1/calibration/sessions
func (s *Server) startCalibration(c *gin.Context) {
	var req struct {
		Port    string `json:"port" binding:"required"`
		Pin     uint8  `json:"pin"`
		BoardID string `json:"board_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	board, err := s.boards.Load(req.BoardID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.registry.Get(req.Port); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	session := calibration.NewSession(calibration.SessionConfig{
		Port:             req.Port,
		Pin:              req.Pin,
		MaxHardwareValue: board.MaxHardwareValue,
		MinSamples:       s.cfg.Calibration.MinSamples,
		MinDistinct:      s.cfg.Calibration.MinDistinctValues,
		Hub:              s.hub,
		Store:            s.store,
		Logger:           s.logger,
	})
	s.sessions.AddCalibration(session)

	c.JSON(http.StatusCreated, gin.H{
		"session_id": session.ID().String(),
		"step":       session.Step(),
	})
}

// GET /api/v1/calibration/sessions/:id
func (s *Server) getCalibration(c *gin.Context) {
	session, ok := s.sessions.Calibration(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	minCount, sweepCount, maxCount := session.SampleCounts()
	response := gin.H{
		"session_id":    session.ID().String(),
		"step":          session.Step(),
		"min_samples":   minCount,
		"sweep_samples": sweepCount,
		"max_samples":   maxCount,
	}
	if record := session.Result(); record != nil {
		response["record"] = record
	}
	c.JSON(http.StatusOK, response)
}

// POST /api/v1/calibration/sessions/:id/advance
func (s *Server) advanceCalibration(c *gin.Context) {
	session, ok := s.sessions.Calibration(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	if err := session.Advance(); err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, calibration.ErrSessionFinished) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error(), "step": session.Step()})
		return
	}

	response := gin.H{"step": session.Step()}
	if record := session.Result(); record != nil {
		response["record"] = record
	}
	c.JSON(http.StatusOK, response)
}

// POST /api/v1/calibration/sessions/:id/cancel
func (s *Server) cancelCalibration(c *gin.Context) {
	id := c.Param("id")
	session, ok := s.sessions.Calibration(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	session.Cancel()
	s.sessions.RemoveCalibration(id)
	c.JSON(http.StatusOK, gin.H{"message": "session cancelled"})
}

// GET /api/v1/calibration/results?port=...&pin=...
func (s *Server) getCalibrationResult(c *gin.Context) {
	port, pin, ok := portPinQuery(c)
	if !ok {
		return
	}

	record, found := s.store.Calibration(port, pin)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no calibration stored"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"port":   port,
		"pin":    pin,
		"record": record,
	})
}
