package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"studysprint/backend/internal/apperrors"
)

// OwnerIDHeader identifies the acting user. Authentication is out of scope;
// the identity is needed only to enforce one concurrent session per actor
// and to scope history queries.
const OwnerIDHeader = "X-Owner-ID"

const ownerIDContextKey = "ownerID"

func Owner() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := strings.TrimSpace(c.GetHeader(OwnerIDHeader))
		if ownerID == "" {
			writeError(c, apperrors.Invalid("missing "+OwnerIDHeader+" header"))
			return
		}
		c.Set(ownerIDContextKey, ownerID)
		c.Next()
	}
}

func OwnerID(c *gin.Context) string {
	value, ok := c.Get(ownerIDContextKey)
	if !ok {
		return ""
	}
	ownerID, ok := value.(string)
	if !ok {
		return ""
	}
	return ownerID
}

func writeError(c *gin.Context, apiErr *apperrors.Error) {
	c.AbortWithStatusJSON(apiErr.Status, gin.H{
		"error": gin.H{
			"kind":    apiErr.Kind,
			"message": apiErr.Message,
		},
	})
}
