package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/dashboard"
	"github.com/ahmetk3436/serverdeck/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// UpgradeCheck is middleware that checks if the request is a websocket upgrade
func (h *DashboardHandler) UpgradeCheck() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

type wsCommand struct {
	Action   string `json:"action"` // refresh, check
	ServerID string `json:"server_id,omitempty"`
}

// Stream pushes a snapshot on connect and after every change. Clients may
// send {"action":"refresh"} or {"action":"check"}, optionally with a
// server_id.
func (h *DashboardHandler) Stream() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals(middleware.LocalUserID).(uuid.UUID)
		logger := slog.With("component", "dashboard.ws", "user_id", userID)

		dash, release, err := h.hub.Acquire(context.Background(), userID)
		if err != nil {
			c.WriteMessage(websocket.TextMessage, []byte(`{"error":"Failed to start dashboard"}`))
			return
		}
		defer release()

		changes, cancel := dash.Store().Watch()
		defer cancel()

		ctx, stop := context.WithCancel(context.Background())
		defer stop()

		// Reader: commands in, and notice when the client goes away.
		go func() {
			defer stop()
			for {
				_, msg, err := c.ReadMessage()
				if err != nil {
					return
				}
				var cmd wsCommand
				if err := json.Unmarshal(msg, &cmd); err != nil {
					continue
				}
				go runCommand(ctx, dash, cmd)
			}
		}()

		if err := writeSnapshot(c, dash); err != nil {
			return
		}

		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				if err := writeSnapshot(c, dash); err != nil {
					logger.Debug("Websocket write failed", "error", err)
					return
				}
			case <-ping.C:
				c.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	})
}

func writeSnapshot(c *websocket.Conn, dash *dashboard.Dashboard) error {
	c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.WriteJSON(dash.Snapshot())
}

func runCommand(ctx context.Context, dash *dashboard.Dashboard, cmd wsCommand) {
	var id uuid.UUID
	if cmd.ServerID != "" {
		parsed, err := uuid.Parse(cmd.ServerID)
		if err != nil {
			return
		}
		id = parsed
	}

	switch {
	case cmd.Action == "refresh" && id == uuid.Nil:
		dash.Poller().RefreshAll(ctx)
	case cmd.Action == "refresh":
		dash.Poller().RefreshOne(ctx, id)
	case cmd.Action == "check" && id == uuid.Nil:
		dash.Checker().CheckAll(ctx)
	case cmd.Action == "check":
		dash.Checker().CheckOne(ctx, id)
	}
}
