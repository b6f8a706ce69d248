package agent

import (
	"crypto/subtle"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type Options struct {
	// Token, when set, must be presented as a bearer token on every call.
	Token    string
	Hostname string
	Version  string
}

type Server struct {
	sampler Sampler
	opts    Options
	started time.Time
	logger  *slog.Logger
}

func NewServer(sampler Sampler, opts Options) *Server {
	return &Server{
		sampler: sampler,
		opts:    opts,
		started: time.Now(),
		logger:  slog.Default().With("component", "agent"),
	}
}

// App builds the fiber app serving /health and /metrics.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "serverdeck-agent",
		DisableStartupMessage: true,
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
	app.Use(recover.New())
	if s.opts.Token != "" {
		app.Use(s.requireToken)
	}

	app.Get("/health", s.health)
	app.Get("/metrics", s.metrics)
	return app
}

func (s *Server) requireToken(c *fiber.Ctx) error {
	auth := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.Token)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.Next()
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"hostname": s.opts.Hostname,
		"version":  s.opts.Version,
		"uptime":   time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) metrics(c *fiber.Ctx) error {
	report, err := s.sampler.Sample(c.UserContext())
	if err != nil {
		s.logger.Error("Sampling failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to sample host metrics"})
	}
	return c.JSON(report)
}
