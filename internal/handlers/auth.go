package handlers

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/ahmetk3436/serverdeck/internal/middleware"
	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/ahmetk3436/serverdeck/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AuthHandler struct {
	users    *services.UserStore
	verifier *middleware.JWTVerifier
	activity *services.ActivityLog
}

func NewAuthHandler(users *services.UserStore, verifier *middleware.JWTVerifier, activity *services.ActivityLog) *AuthHandler {
	return &AuthHandler{users: users, verifier: verifier, activity: activity}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req services.Registration
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	user, err := h.users.Create(c.UserContext(), req)
	if err != nil {
		return serviceError(c, err, "register")
	}
	h.activity.Record(c.UserContext(), user.ID, services.ActionRegister, user.Email, nil)

	return h.issue(c, fiber.StatusCreated, user)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Email and password are required")
	}

	user, err := h.users.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return serviceError(c, err, "log in")
	}
	h.activity.Record(c.UserContext(), user.ID, services.ActionLogin, user.Email, fiber.Map{"ip": c.IP()})

	return h.issue(c, fiber.StatusOK, user)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	claims, err := h.verifier.Parse(req.RefreshToken, middleware.TokenRefresh)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid or expired refresh token")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid or expired refresh token")
	}

	// The account may have been removed since the token was issued.
	user, err := h.users.Get(c.UserContext(), userID)
	if errors.Is(err, services.ErrUserNotFound) {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid or expired refresh token")
	}
	if err != nil {
		return serviceError(c, err, "refresh token")
	}

	return h.issue(c, fiber.StatusOK, user)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := h.users.Get(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return serviceError(c, err, "load user")
	}
	return c.JSON(userJSON(user))
}

func (h *AuthHandler) issue(c *fiber.Ctx, status int, user *models.User) error {
	access, refresh, err := h.verifier.GenerateTokens(user.ID, user.Email)
	if err != nil {
		slog.Error("Failed to generate tokens", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to generate tokens")
	}

	return c.Status(status).JSON(fiber.Map{
		"access_token":  access,
		"refresh_token": refresh,
		"user":          userJSON(user),
	})
}

func userJSON(user *models.User) fiber.Map {
	return fiber.Map{
		"id":              user.ID,
		"email":           user.Email,
		"display_name":    user.DisplayName,
		"avatar_initials": buildInitials(user.DisplayName),
		"created_at":      user.CreatedAt,
	}
}

// buildInitials extracts uppercase initials from a display name.
// e.g. "Ada Lovelace" -> "AL", "ada" -> "A"
func buildInitials(name string) string {
	if name == "" {
		return "?"
	}
	initials := ""
	for _, p := range strings.Fields(name) {
		initials += strings.ToUpper(string([]rune(p)[:1]))
	}
	if r := []rune(initials); len(r) > 2 {
		initials = string(r[:2])
	}
	return initials
}
