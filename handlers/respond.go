package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/folio/folio-api/internal/apperr"
	"github.com/folio/folio-api/pkg/logger"
)

// respondError writes err as {"error": msg} with the status its kind maps to.
// Internal failures are logged and answered with a generic message.
func respondError(c *gin.Context, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.PublicMessage(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// pageParams reads ?cursor= and ?limit=. A missing or unparsable limit is 0 (service default).
func pageParams(c *gin.Context) (string, int) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 0 {
		limit = 0
	}
	return c.Query("cursor"), limit
}
