package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// POST /api/v1/firmware/upload
//
// The upload runs in the background; progress and outcome arrive on the
// event stream. A missing board or an already-leased port is reported
// synchronously.
func (s *Server) uploadFirmware(c *gin.Context) {
	var req struct {
		Port      string `json:"port" binding:"required"`
		BoardID   string `json:"board_id" binding:"required"`
		ImagePath string `json:"image_path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := s.boards.Load(req.BoardID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	go func() {
		if err := s.firmware.Upload(context.Background(), req.Port, req.BoardID, req.ImagePath); err != nil {
			s.logger.Warn("Background firmware upload failed",
				zap.String("port", req.Port), zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "upload started",
		"port":    req.Port,
		"board":   req.BoardID,
	})
}
