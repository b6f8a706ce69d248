package handlers

import (
	"strconv"

	"github.com/ahmetk3436/serverdeck/internal/middleware"
	"github.com/ahmetk3436/serverdeck/internal/services"
	"github.com/gofiber/fiber/v2"
)

type HistoryHandler struct {
	history *services.HistoryLog
}

func NewHistoryHandler(history *services.HistoryLog) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// ListHistory returns the newest proxy calls with their server nickname.
func (h *HistoryHandler) ListHistory(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	items, err := h.history.Recent(c.UserContext(), middleware.UserID(c), limit)
	if err != nil {
		return serviceError(c, err, "list history")
	}
	return c.JSON(fiber.Map{"history": items})
}
