package routes

import (
	"github.com/ahmetk3436/serverdeck/internal/handlers"
	"github.com/ahmetk3436/serverdeck/internal/middleware"
	"github.com/ahmetk3436/serverdeck/internal/telemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

func Setup(
	app *fiber.App,
	verifier *middleware.JWTVerifier,
	proxyLimiter *middleware.RateLimiter,
	metrics *telemetry.Metrics,
	systemHandler *handlers.SystemHandler,
	authHandler *handlers.AuthHandler,
	serverHandler *handlers.ServerHandler,
	proxyHandler *handlers.ProxyHandler,
	historyHandler *handlers.HistoryHandler,
	activityHandler *handlers.ActivityHandler,
	preferencesHandler *handlers.PreferencesHandler,
	dashboardHandler *handlers.DashboardHandler,
) {
	// ─── Public ──────────────────────────────────────────────────────────
	app.Get("/api/health", systemHandler.Health)
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	}

	// ─── Auth ────────────────────────────────────────────────────────────
	app.Post("/api/auth/register", authHandler.Register)
	app.Post("/api/auth/login", authHandler.Login)
	app.Post("/api/auth/refresh", authHandler.Refresh)

	// ─── Proxy ───────────────────────────────────────────────────────────
	// Authenticates its own bearer token so a rejected call is never audited.
	proxyChain := []fiber.Handler{}
	if proxyLimiter != nil {
		proxyChain = append(proxyChain, proxyLimiter.Handler())
	}
	proxyChain = append(proxyChain, proxyHandler.Proxy)
	app.Post("/api/proxy", proxyChain...)

	// ─── Protected routes ────────────────────────────────────────────────
	api := app.Group("/api", middleware.JWTProtected(verifier))

	api.Get("/auth/me", authHandler.Me)

	// Servers
	api.Get("/servers", serverHandler.ListServers)
	api.Post("/servers", serverHandler.CreateServer)
	api.Get("/servers/:id", serverHandler.GetServer)
	api.Put("/servers/:id", serverHandler.UpdateServer)
	api.Delete("/servers/:id", serverHandler.DeleteServer)
	api.Post("/servers/:id/toggle", serverHandler.ToggleServer)

	// History and activity
	api.Get("/history", historyHandler.ListHistory)
	api.Get("/activity", activityHandler.ListActivity)

	// Preferences
	api.Get("/preferences", preferencesHandler.GetPreferences)
	api.Put("/preferences", preferencesHandler.UpdatePreferences)

	// Dashboard
	api.Get("/dashboard", dashboardHandler.Snapshot)
	api.Post("/dashboard/refresh", dashboardHandler.RefreshAll)
	api.Post("/dashboard/check", dashboardHandler.CheckAll)
	api.Post("/dashboard/servers/:id/refresh", dashboardHandler.RefreshServer)
	api.Post("/dashboard/servers/:id/check", dashboardHandler.CheckServer)

	// Dashboard stream (WebSocket)
	api.Use("/dashboard/ws", dashboardHandler.UpgradeCheck())
	api.Get("/dashboard/ws", dashboardHandler.Stream())
}
