package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segment-reservation/internal/logger"
)

// RequestLogger writes one API entry per request with the final status.
func RequestLogger(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let the error handler write the response so the status is known
				c.Error(err)
			}
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			log.LogAPI(c.Request().Method, path, c.Response().Status, time.Since(start))
			return nil
		}
	}
}
