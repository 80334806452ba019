package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/harrissondutra/fitOS-sub014/internal/common"

	"github.com/labstack/echo/v4"
)

const AdminTokenHeader = "X-Admin-Token"

// AdminToken guards operator endpoints with a shared secret, sent either in
// X-Admin-Token or as an Authorization bearer token. An empty token disables
// the endpoints entirely.
func AdminToken(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return common.SendUnauthorizedError(c)
			}

			provided := c.Request().Header.Get(AdminTokenHeader)
			if provided == "" {
				authHeader := c.Request().Header.Get("Authorization")
				if after, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
					provided = after
				}
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				return common.SendUnauthorizedError(c)
			}
			return next(c)
		}
	}
}
