package handlers

import (
	"encoding/json"

	"github.com/ahmetk3436/serverdeck/internal/middleware"
	"github.com/ahmetk3436/serverdeck/internal/proxy"
	"github.com/gofiber/fiber/v2"
)

type ProxyHandler struct {
	svc *proxy.Service
}

func NewProxyHandler(svc *proxy.Service) *ProxyHandler {
	return &ProxyHandler{svc: svc}
}

// Proxy forwards one request to a registered server and answers with the
// upstream status, body and content type untouched. The bearer token is
// checked before the body is even looked at.
func (h *ProxyHandler) Proxy(c *fiber.Ctx) error {
	token := middleware.BearerToken(c)
	if token == "" {
		return errorJSON(c, fiber.StatusUnauthorized, proxy.ErrUnauthenticated.Error())
	}
	userID, err := h.svc.Authenticate(c.UserContext(), token)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, proxy.ErrUnauthenticated.Error())
	}

	var req proxy.Request
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
		}
	}

	resp, err := h.svc.Forward(c.UserContext(), userID, req)
	if err != nil {
		return errorJSON(c, proxy.StatusFor(err), proxy.PublicMessage(err))
	}

	c.Set(fiber.HeaderContentType, resp.ContentType)
	return c.Status(resp.StatusCode).Send(resp.Body)
}
