package handlers

import (
	"github.com/ahmetk3436/serverdeck/internal/middleware"
	"github.com/ahmetk3436/serverdeck/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RefreshApplier receives a user's new metrics refresh preference.
type RefreshApplier interface {
	ApplyPreferences(userID uuid.UUID, refreshSeconds int)
}

type PreferencesHandler struct {
	prefs    *services.PreferencesStore
	activity *services.ActivityLog
	applier  RefreshApplier
}

func NewPreferencesHandler(prefs *services.PreferencesStore, activity *services.ActivityLog, applier RefreshApplier) *PreferencesHandler {
	return &PreferencesHandler{prefs: prefs, activity: activity, applier: applier}
}

func (h *PreferencesHandler) GetPreferences(c *fiber.Ctx) error {
	prefs, err := h.prefs.Get(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return serviceError(c, err, "load preferences")
	}
	return c.JSON(prefs)
}

func (h *PreferencesHandler) UpdatePreferences(c *fiber.Ctx) error {
	var req services.PreferencesUpdate
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	userID := middleware.UserID(c)
	prefs, err := h.prefs.Update(c.UserContext(), userID, req)
	if err != nil {
		return serviceError(c, err, "save preferences")
	}

	if req.MetricsRefreshSeconds != nil && h.applier != nil {
		h.applier.ApplyPreferences(userID, prefs.MetricsRefreshSeconds)
	}
	h.activity.Record(c.UserContext(), userID, services.ActionPreferencesSave, "", nil)
	return c.JSON(prefs)
}
