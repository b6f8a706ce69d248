package handlers

import (
	"time"

	"github.com/ahmetk3436/serverdeck/internal/dashboard"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var startTime = time.Now()
var Version = "1.0.0"

// ChangeFeed is implemented by registry notifiers that hold a connection
// of their own.
type ChangeFeed interface {
	Listening() bool
}

type SystemHandler struct {
	db   *gorm.DB
	hub  *dashboard.Hub
	feed ChangeFeed
}

// NewSystemHandler reports on db and hub. feed may be nil when registry
// changes are delivered in-process only.
func NewSystemHandler(db *gorm.DB, hub *dashboard.Hub, feed ChangeFeed) *SystemHandler {
	return &SystemHandler{db: db, hub: hub, feed: feed}
}

// Health is degraded only when the database is unreachable. A change feed
// that is reconnecting still works through local delivery.
func (h *SystemHandler) Health(c *fiber.Ctx) error {
	checks := fiber.Map{"db": "ok", "change_feed": "local"}
	healthy := true

	if sqlDB, err := h.db.DB(); err != nil {
		checks["db"] = "error: " + err.Error()
		healthy = false
	} else if err := sqlDB.PingContext(c.UserContext()); err != nil {
		checks["db"] = "unreachable: " + err.Error()
		healthy = false
	}

	if h.feed != nil {
		checks["change_feed"] = "reconnecting"
		if h.feed.Listening() {
			checks["change_feed"] = "listening"
		}
	}

	dashboards := 0
	if h.hub != nil {
		dashboards = h.hub.Running()
	}

	status, code := "ok", fiber.StatusOK
	if !healthy {
		status, code = "degraded", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":     status,
		"version":    Version,
		"uptime":     time.Since(startTime).Round(time.Second).String(),
		"dashboards": dashboards,
		"checks":     checks,
	})
}
