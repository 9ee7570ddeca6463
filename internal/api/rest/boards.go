package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /api/v1/boards
func (s *Server) listBoards(c *gin.Context) {
	ids, err := s.boards.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"boards": ids,
		"count":  len(ids),
	})
}

// GET /api/v1/boards/:id
func (s *Server) getBoard(c *gin.Context) {
	board, err := s.boards.Load(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, board)
}
