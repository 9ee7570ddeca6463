package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tswio/panelcore/internal/calibration"
)

// POST /api/v1/notch/sessions
func (s *Server) startNotchSession(c *gin.Context) {
	var req struct {
		Port    string              `json:"port" binding:"required"`
		Pin     uint8               `json:"pin"`
		Notches []calibration.Notch `json:"notches" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.registry.Get(req.Port); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	session, err := calibration.NewNotchSession(calibration.NotchSessionConfig{
		Port:       req.Port,
		Pin:        req.Pin,
		Notches:    req.Notches,
		MinSamples: s.cfg.Calibration.MinSamples,
		Hub:        s.hub,
		Store:      s.store,
		Logger:     s.logger,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.sessions.AddNotch(session)

	c.JSON(http.StatusCreated, gin.H{
		"session_id":    session.ID().String(),
		"current_notch": session.CurrentNotch(),
	})
}

func (s *Server) notchSession(c *gin.Context) (*calibration.NotchSession, bool) {
	session, ok := s.sessions.Notch(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return session, true
}

func notchErrorStatus(err error) int {
	switch {
	case errors.Is(err, calibration.ErrSessionFinished):
		return http.StatusConflict
	case errors.Is(err, calibration.ErrUnknownNotch):
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

// GET /api/v1/notch/sessions/:id
func (s *Server) getNotchSession(c *gin.Context) {
	session, ok := s.notchSession(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":    session.ID().String(),
		"current_notch": session.CurrentNotch(),
		"capturing":     session.Capturing(),
		"ranges":        session.Preview(),
	})
}

// POST /api/v1/notch/sessions/:id/capture/start
func (s *Server) startNotchCapture(c *gin.Context) {
	session, ok := s.notchSession(c)
	if !ok {
		return
	}

	if err := session.StartCapture(); err != nil {
		c.JSON(notchErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"current_notch": session.CurrentNotch()})
}

// POST /api/v1/notch/sessions/:id/capture/complete
func (s *Server) completeNotch(c *gin.Context) {
	session, ok := s.notchSession(c)
	if !ok {
		return
	}

	if err := session.CompleteNotch(); err != nil {
		c.JSON(notchErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"current_notch": session.CurrentNotch(),
		"ranges":        session.Preview(),
	})
}

// POST /api/v1/notch/sessions/:id/capture/reset
func (s *Server) resetNotchSamples(c *gin.Context) {
	session, ok := s.notchSession(c)
	if !ok {
		return
	}

	if err := session.ResetSamples(); err != nil {
		c.JSON(notchErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "samples reset"})
}

// POST /api/v1/notch/sessions/:id/goto
func (s *Server) goToNotch(c *gin.Context) {
	session, ok := s.notchSession(c)
	if !ok {
		return
	}

	var req struct {
		Notch *int `json:"notch" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := session.GoToNotch(*req.Notch); err != nil {
		c.JSON(notchErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"current_notch": session.CurrentNotch()})
}

// GET /api/v1/notch/sessions/:id/preview
func (s *Server) previewNotchRanges(c *gin.Context) {
	session, ok := s.notchSession(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"ranges": session.Preview()})
}

// POST /api/v1/notch/sessions/:id/save
func (s *Server) saveNotchRanges(c *gin.Context) {
	session, ok := s.notchSession(c)
	if !ok {
		return
	}

	if err := session.Save(); err != nil {
		c.JSON(notchErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	s.sessions.RemoveNotch(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"message": "notch ranges saved"})
}

// POST /api/v1/notch/sessions/:id/cancel
func (s *Server) cancelNotchSession(c *gin.Context) {
	session, ok := s.notchSession(c)
	if !ok {
		return
	}

	session.Cancel()
	s.sessions.RemoveNotch(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"message": "session cancelled"})
}

// GET /api/v1/notch/ranges?port=...&pin=...
func (s *Server) getNotchRanges(c *gin.Context) {
	port, pin, ok := portPinQuery(c)
	if !ok {
		return
	}

	ranges, found := s.store.NotchRanges(port, pin)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no notch ranges stored"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"port":   port,
		"pin":    pin,
		"ranges": ranges,
	})
}
