package handlers

import (
	"strconv"

	"github.com/ahmetk3436/serverdeck/internal/middleware"
	"github.com/ahmetk3436/serverdeck/internal/services"
	"github.com/gofiber/fiber/v2"
)

type ActivityHandler struct {
	activity *services.ActivityLog
}

func NewActivityHandler(activity *services.ActivityLog) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// ListActivity returns the caller's activity, paginated and filterable by
// action.
func (h *ActivityHandler) ListActivity(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))

	result, err := h.activity.List(c.UserContext(), middleware.UserID(c), c.Query("action"), page, perPage)
	if err != nil {
		return serviceError(c, err, "list activity")
	}
	return c.JSON(result)
}
