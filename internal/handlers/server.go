package handlers

import (
	"github.com/ahmetk3436/serverdeck/internal/middleware"
	"github.com/ahmetk3436/serverdeck/internal/services"
	"github.com/gofiber/fiber/v2"
)

type ServerHandler struct {
	registry services.Registry
	activity *services.ActivityLog
}

func NewServerHandler(registry services.Registry, activity *services.ActivityLog) *ServerHandler {
	return &ServerHandler{registry: registry, activity: activity}
}

func (h *ServerHandler) ListServers(c *fiber.Ctx) error {
	servers, err := h.registry.List(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return serviceError(c, err, "list servers")
	}
	return c.JSON(fiber.Map{"servers": servers})
}

func (h *ServerHandler) GetServer(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid server ID")
	}
	server, err := h.registry.Get(c.UserContext(), middleware.UserID(c), id)
	if err != nil {
		return serviceError(c, err, "get server")
	}
	return c.JSON(server)
}

func (h *ServerHandler) CreateServer(c *fiber.Ctx) error {
	var req services.ServerFields
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	userID := middleware.UserID(c)
	server, err := h.registry.Insert(c.UserContext(), userID, req)
	if err != nil {
		return serviceError(c, err, "create server")
	}

	h.activity.Record(c.UserContext(), userID, services.ActionServerCreate, server.Nickname, fiber.Map{
		"server_id": server.ID,
		"host":      server.Host,
		"port":      server.Port,
	})
	return c.Status(fiber.StatusCreated).JSON(server)
}

func (h *ServerHandler) UpdateServer(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid server ID")
	}
	var req services.ServerUpdate
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	userID := middleware.UserID(c)
	server, err := h.registry.Update(c.UserContext(), userID, id, req)
	if err != nil {
		return serviceError(c, err, "update server")
	}

	h.activity.Record(c.UserContext(), userID, services.ActionServerUpdate, server.Nickname, fiber.Map{"server_id": server.ID})
	return c.JSON(server)
}

func (h *ServerHandler) DeleteServer(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid server ID")
	}

	userID := middleware.UserID(c)
	if err := h.registry.Delete(c.UserContext(), userID, id); err != nil {
		return serviceError(c, err, "delete server")
	}

	h.activity.Record(c.UserContext(), userID, services.ActionServerDelete, id.String(), nil)
	return c.JSON(fiber.Map{"message": "Server deleted"})
}

// ToggleServer flips is_active.
func (h *ServerHandler) ToggleServer(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid server ID")
	}

	userID := middleware.UserID(c)
	current, err := h.registry.Get(c.UserContext(), userID, id)
	if err != nil {
		return serviceError(c, err, "toggle server")
	}
	active := !current.IsActive
	server, err := h.registry.Update(c.UserContext(), userID, id, services.ServerUpdate{IsActive: &active})
	if err != nil {
		return serviceError(c, err, "toggle server")
	}

	h.activity.Record(c.UserContext(), userID, services.ActionServerToggle, server.Nickname, fiber.Map{"is_active": active})
	return c.JSON(server)
}
