package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// userID returns the authenticated user ID as a string, or "anon" when
// the request carries no verified identity.
func userID(c echo.Context) string {
	if rc, ok := RequestContext(c); ok && rc.UserID != 0 {
		return strconv.FormatUint(rc.UserID, 10)
	}
	return "anon"
}
