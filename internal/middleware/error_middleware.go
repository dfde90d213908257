package middleware

import (
	"net/http"

	"sentinal-media/internal/transport/httpdto"
	sentinal_errors "sentinal-media/pkg/errors"
	"sentinal-media/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler logs errors attached to the context. When the handler did not
// write a response it renders a generic internal error.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		if l != nil {
			l.With(c.Request.Context(),
				zap.String("path", c.FullPath()),
				zap.Int("status", c.Writer.Status()),
			).Error("request error", zap.Error(err))
		}
		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(http.StatusText(http.StatusInternalServerError), sentinal_errors.CodeInternal))
		}
	}
}
