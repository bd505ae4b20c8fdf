// Package server exposes scans over HTTP.
package server

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/maxvaer/apiprobe/internal/store"
)

// Config holds server settings.
type Config struct {
	// AllowOrigins lists CORS origins; empty allows none.
	AllowOrigins []string
	// MaxScanTime bounds one API-triggered scan.
	MaxScanTime time.Duration
	// DB stores finished scans; nil disables the history endpoints.
	DB     *store.DB
	Logger logrus.FieldLogger
}

// Server is the HTTP API.
type Server struct {
	app *fiber.App
	h   *Handler
}

// New builds the fiber app and its routes.
func New(cfg Config) *Server {
	if cfg.MaxScanTime <= 0 {
		cfg.MaxScanTime = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	h := &Handler{db: cfg.DB, log: cfg.Logger, maxScanTime: cfg.MaxScanTime}

	app := fiber.New()
	app.Use(recoverer.New())
	if len(cfg.AllowOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Content-Type", "Origin", "Accept"},
			AllowOrigins: cfg.AllowOrigins,
		}))
	}

	app.Post("/scan", h.ScanHandler)
	app.Get("/scans", h.ListHandler)
	app.Get("/scans/:id", h.GetHandler)
	app.Get("/health", func(ctx fiber.Ctx) error {
		return ctx.SendStatus(fiber.StatusOK)
	})

	return &Server{app: app, h: h}
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.h.log.Infof("API server listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
