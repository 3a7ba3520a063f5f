package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"studysprint/backend/internal/apperrors"
	"studysprint/backend/internal/model"
)

func writeError(c *gin.Context, apiErr *apperrors.Error) {
	body := gin.H{
		"kind":    apiErr.Kind,
		"message": apiErr.Message,
	}
	if apiErr.Details != nil {
		body["details"] = apiErr.Details
	}
	c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": body})
}

func writeSnapshot(c *gin.Context, snap model.Snapshot, apiErr *apperrors.Error) {
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": snap})
}
