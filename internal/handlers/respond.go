package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetk3436/serverdeck/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

// serviceError maps store errors onto responses. Anything unexpected is
// logged and reported as a bare 500.
func serviceError(c *fiber.Ctx, err error, action string) error {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return errorJSON(c, fiber.StatusBadRequest, verr.Error())
	case errors.Is(err, services.ErrServerNotFound):
		return errorJSON(c, fiber.StatusNotFound, "Server not found")
	case errors.Is(err, services.ErrEmailTaken):
		return errorJSON(c, fiber.StatusConflict, "Email already registered")
	case errors.Is(err, services.ErrInvalidCredentials):
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, services.ErrUserNotFound):
		return errorJSON(c, fiber.StatusNotFound, "User not found")
	default:
		slog.Error("Request failed", "action", action, "path", c.Path(), "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to "+action)
	}
}

func paramID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil
}
