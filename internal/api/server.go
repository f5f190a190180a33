package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/config"
	"github.com/gmsas95/dosetrack/internal/medication"
	"github.com/gmsas95/dosetrack/internal/metrics"
	"github.com/gmsas95/dosetrack/internal/reminders"
)

// Server exposes the UI boundary: commands against the treatment store and
// read-only derived queries. Everything behind it is the engine's business.
type Server struct {
	app        *fiber.App
	config     *config.Config
	store      *medication.Store
	reconciler *reminders.Reconciler
	gateway    reminders.Gateway
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// New creates a new API server
func New(cfg *config.Config, st *medication.Store, rec *reminders.Reconciler, gw reminders.Gateway, m *metrics.Metrics, log *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	s := &Server{
		app:        app,
		config:     cfg,
		store:      st,
		reconciler: rec,
		gateway:    gw,
		metrics:    m,
		logger:     log,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/api/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	api := s.app.Group("/api")

	api.Get("/medications", s.handleListMedications)
	api.Post("/medications", s.handleCreateMedication)
	api.Get("/medications/:id", s.handleGetMedication)
	api.Put("/medications/:id", s.handleUpdateMedication)
	api.Delete("/medications/:id", s.handleDeleteMedication)
	api.Post("/medications/:id/active", s.handleSetActive)

	api.Get("/medications/:id/injections", s.handleListInjections)
	api.Post("/medications/:id/injections", s.handleRecordInjection)
	api.Put("/injections/:id", s.handleUpdateInjection)
	api.Delete("/injections/:id", s.handleDeleteInjection)

	api.Get("/notifications/status", s.handleNotificationStatus)
	api.Post("/notifications/authorize", s.handleAuthorize)
	api.Post("/notifications/revoke", s.handleRevoke)
}

// Start begins listening
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	s.logger.Info("API server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(10 * time.Second)
}

// App exposes the fiber app, used in tests
func (s *Server) App() *fiber.App {
	return s.app
}
