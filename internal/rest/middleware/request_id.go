package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/revuo/revuo/internal/types"
)

// RequestIDMiddleware reuses the caller's request id or mints one, and stores it on the
// request context for logging.
func RequestIDMiddleware(c *gin.Context) {
	requestID := c.GetHeader(types.HeaderRequestID)
	if requestID == "" {
		requestID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REQUEST)
	}

	c.Request = c.Request.WithContext(types.WithRequestID(c.Request.Context(), requestID))
	c.Header(types.HeaderRequestID, requestID)
	c.Next()
}
