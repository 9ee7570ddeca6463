package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// portPinQuery extracts the port and pin query parameters shared by the
// result lookup endpoints. On failure it writes the error response itself.
func portPinQuery(c *gin.Context) (string, uint8, bool) {
	port := c.Query("port")
	if port == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing port parameter"})
		return "", 0, false
	}

	pin, err := strconv.ParseUint(c.Query("pin"), 10, 8)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pin parameter"})
		return "", 0, false
	}

	return port, uint8(pin), true
}
