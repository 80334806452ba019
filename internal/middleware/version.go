package middleware

import (
	"github.com/labstack/echo/v4"
)

// VersionRoute creates a route group under /<version> whose responses carry
// the X-API-Version header.
func VersionRoute(e *echo.Echo, version string) *echo.Group {
	group := e.Group("/" + version)
	group.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("X-API-Version", version)
			return next(c)
		}
	})
	return group
}
