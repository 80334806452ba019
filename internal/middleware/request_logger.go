package middleware

import (
	"time"

	"github.com/harrissondutra/fitOS-sub014/internal/common"
	"github.com/harrissondutra/fitOS-sub014/internal/logging"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequestLogger writes one access log line per request, tagged with the
// resolved tenant when there is one.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	logger = logging.OrNop(logger)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", c.Path()),
				zap.String("host", req.Host),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", c.RealIP()),
			}
			if tenantID, ok := common.GetTenantIDFromContext(req.Context()); ok {
				fields = append(fields, zap.String("tenant_id", tenantID))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}

			switch status := c.Response().Status; {
			case status >= 500:
				logger.Error("request", fields...)
			case status >= 400:
				logger.Warn("request", fields...)
			default:
				logger.Info("request", fields...)
			}
			return nil
		}
	}
}
