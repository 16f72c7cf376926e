package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/utils"
)

// contextKey is where JWTAuth stores the verified domain.RequestContext.
const contextKey = "request_context"

// JWTAuth validates the Bearer access token and stores the caller's
// identity on the echo context and on the request's context.Context.
// Handlers read it back with RequestContext.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			rc, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(contextKey, rc)
			c.SetRequest(c.Request().WithContext(domain.WithRequestContext(c.Request().Context(), rc)))
			return next(c)
		}
	}
}

// RequestContext returns the identity stored by JWTAuth.
func RequestContext(c echo.Context) (domain.RequestContext, bool) {
	rc, ok := c.Get(contextKey).(domain.RequestContext)
	return rc, ok
}
