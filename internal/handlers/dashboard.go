package handlers

import (
	"github.com/ahmetk3436/serverdeck/internal/dashboard"
	"github.com/ahmetk3436/serverdeck/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

type DashboardHandler struct {
	hub *dashboard.Hub
}

func NewDashboardHandler(hub *dashboard.Hub) *DashboardHandler {
	return &DashboardHandler{hub: hub}
}

// withDashboard runs fn against the caller's dashboard, starting it when
// this is the first use.
func (h *DashboardHandler) withDashboard(c *fiber.Ctx, fn func(*dashboard.Dashboard) error) error {
	dash, release, err := h.hub.Acquire(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return serviceError(c, err, "start dashboard")
	}
	defer release()
	return fn(dash)
}

func (h *DashboardHandler) Snapshot(c *fiber.Ctx) error {
	return h.withDashboard(c, func(d *dashboard.Dashboard) error {
		return c.JSON(d.Snapshot())
	})
}

// RefreshAll polls every active server and answers once all have settled.
func (h *DashboardHandler) RefreshAll(c *fiber.Ctx) error {
	return h.withDashboard(c, func(d *dashboard.Dashboard) error {
		d.Poller().RefreshAll(c.UserContext())
		return c.JSON(d.Snapshot())
	})
}

// CheckAll probes every server one after another.
func (h *DashboardHandler) CheckAll(c *fiber.Ctx) error {
	return h.withDashboard(c, func(d *dashboard.Dashboard) error {
		d.Checker().CheckAll(c.UserContext())
		return c.JSON(d.Snapshot())
	})
}

func (h *DashboardHandler) RefreshServer(c *fiber.Ctx) error {
	return h.serverAction(c, func(d *dashboard.Dashboard, st dashboard.ServerState) {
		d.Poller().RefreshOne(c.UserContext(), st.Server.ID)
	})
}

func (h *DashboardHandler) CheckServer(c *fiber.Ctx) error {
	return h.serverAction(c, func(d *dashboard.Dashboard, st dashboard.ServerState) {
		d.Checker().CheckOne(c.UserContext(), st.Server.ID)
	})
}

func (h *DashboardHandler) serverAction(c *fiber.Ctx, fn func(*dashboard.Dashboard, dashboard.ServerState)) error {
	id, ok := paramID(c)
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid server ID")
	}
	return h.withDashboard(c, func(d *dashboard.Dashboard) error {
		st, ok := d.Store().Get(id)
		if !ok {
			return errorJSON(c, fiber.StatusNotFound, "Server not found")
		}
		fn(d, st)
		st, _ = d.Store().Get(id)
		return c.JSON(st)
	})
}
