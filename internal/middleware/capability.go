package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segment-reservation/internal/domain"
)

// RequireCapability rejects the request with 403 unless the caller's role
// may run op. It must run after JWTAuth.
func RequireCapability(caps domain.Capabilities, op domain.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rc, ok := RequestContext(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}
			if err := caps.Authorize(rc, op); err != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "operation": string(op)})
			}
			return next(c)
		}
	}
}
