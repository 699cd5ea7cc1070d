package middleware

import (
	"github.com/gin-gonic/gin"
	ierr "github.com/revuo/revuo/internal/errors"
	"github.com/revuo/revuo/internal/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error. Handlers that already
// wrote a response are left alone.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := ierr.HTTPStatusFromErr(err)
		if status >= 500 {
			log.WithContext(c.Request.Context()).Errorw("request failed",
				"path", c.Request.URL.Path,
				"error", err,
				"details", ierr.GetReportableDetails(err))
		}

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(status, ierr.NewErrorResponse(err))
	}
}
