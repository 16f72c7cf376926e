package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Sweep handles POST /v1/admin/sweep: runs every idle job once, the same
// work the scheduler does on its intervals.
func (h *Handler) Sweep(c echo.Context) error {
	res, err := h.Engine.Sweeper.Sweep(c.Request().Context(), h.AutoTrips)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
