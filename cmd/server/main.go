package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ahmetk3436/serverdeck/internal/config"
	"github.com/ahmetk3436/serverdeck/internal/dashboard"
	"github.com/ahmetk3436/serverdeck/internal/database"
	"github.com/ahmetk3436/serverdeck/internal/handlers"
	"github.com/ahmetk3436/serverdeck/internal/middleware"
	"github.com/ahmetk3436/serverdeck/internal/proxy"
	"github.com/ahmetk3436/serverdeck/internal/routes"
	"github.com/ahmetk3436/serverdeck/internal/services"
	"github.com/ahmetk3436/serverdeck/internal/telemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
)

func main() {
	// ─── Config ──────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// JSON structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting ServerDeck", "version", handlers.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Database ────────────────────────────────────────────────────────
	db, err := database.Open(cfg)
	if err != nil {
		slog.Error("Database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	// ─── Registry change feed ────────────────────────────────────────────
	var (
		notifier services.Notifier
		feed     handlers.ChangeFeed
	)
	if cfg.DBDriver == "postgres" {
		pg := services.NewPGNotifier(db, database.DSN(cfg), cfg.NotifyChannel)
		go pg.Listen(ctx)
		notifier, feed = pg, pg
	} else {
		notifier = services.NewLocalNotifier()
	}

	// ─── Services ────────────────────────────────────────────────────────
	var metrics *telemetry.Metrics
	if cfg.MetricsEnabled {
		metrics = telemetry.New()
	}

	registry := services.NewGormRegistry(db, notifier)
	users := services.NewUserStore(db)
	prefs := services.NewPreferencesStore(db)
	history := services.NewHistoryLog(db)
	activity := services.NewActivityLog(db)
	verifier := middleware.NewJWTVerifier(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	proxySvc := proxy.NewService(verifier, proxy.NewResolver(registry), history, proxy.Options{
		Timeout:       cfg.ProxyTimeout,
		ResponseLimit: cfg.AuditResponseLimit,
		Metrics:       metrics,
	})

	// ─── Dashboards ──────────────────────────────────────────────────────
	hub := dashboard.NewHub(ctx, func(userID uuid.UUID) (*dashboard.Dashboard, error) {
		return dashboard.New(
			services.OwnerSource{Registry: registry, OwnerID: userID},
			proxy.UserCaller{Service: proxySvc, UserID: userID},
			dashboard.Options{
				RefreshInterval: cfg.MetricsRefreshInterval,
				StatusSchedule:  cfg.StatusCheckSchedule,
				StatusRate:      cfg.StatusCheckRate,
				Metrics:         metrics,
			},
		)
	}, dashboard.HubOptions{
		IdleTimeout:     cfg.DashboardIdleTimeout,
		RefreshInterval: cfg.MetricsRefreshInterval,
		RefreshSeconds: func(ctx context.Context, userID uuid.UUID) (int, error) {
			p, err := prefs.Get(ctx, userID)
			if err != nil {
				return 0, err
			}
			return p.MetricsRefreshSeconds, nil
		},
		Metrics: metrics,
	})

	if cfg.File != "" {
		go func() {
			err := config.Watch(ctx, cfg, func(next *config.Config) {
				hub.SetRefreshInterval(next.MetricsRefreshInterval)
			})
			if err != nil {
				slog.Warn("Config watcher stopped", "error", err)
			}
		}()
	}

	// ─── Handlers ───────────────────────────────────────────────────────
	systemHandler := handlers.NewSystemHandler(db, hub, feed)
	authHandler := handlers.NewAuthHandler(users, verifier, activity)
	serverHandler := handlers.NewServerHandler(registry, activity)
	proxyHandler := handlers.NewProxyHandler(proxySvc)
	historyHandler := handlers.NewHistoryHandler(history)
	activityHandler := handlers.NewActivityHandler(activity)
	preferencesHandler := handlers.NewPreferencesHandler(prefs, activity, hub)
	dashboardHandler := handlers.NewDashboardHandler(hub)

	var proxyLimiter *middleware.RateLimiter
	if cfg.ProxyRateLimit > 0 {
		proxyLimiter = middleware.NewRateLimiter(cfg.ProxyRateLimit, cfg.ProxyRateBurst)
	}

	// ─── Fiber App ──────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      "serverdeck v" + handlers.Version,
		ServerHeader: "serverdeck",
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal server error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}
			return c.Status(code).JSON(fiber.Map{"error": message})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Client-Info, Apikey",
		AllowMethods: "GET, POST, PUT, DELETE, PATCH, OPTIONS",
	}))

	app.Use(recover.New(recover.Config{
		EnableStackTrace: false,
	}))

	// Security headers
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		return c.Next()
	})

	// Request logger
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if c.Path() == "/api/health" || c.Path() == "/metrics" {
			return err
		}
		slog.Info("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.IP(),
		)
		return err
	})

	// ─── Routes ─────────────────────────────────────────────────────────
	routes.Setup(app, verifier, proxyLimiter, metrics, systemHandler, authHandler,
		serverHandler, proxyHandler, historyHandler, activityHandler,
		preferencesHandler, dashboardHandler)

	// ─── Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down ServerDeck...")

		hub.Close()
		cancel()

		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("Fiber shutdown error", "error", err)
		}
	}()

	// ─── Start ──────────────────────────────────────────────────────────
	listenAddr := ":" + cfg.Port
	slog.Info("ServerDeck listening", "addr", listenAddr)

	if err := app.Listen(listenAddr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	database.Close(db)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
