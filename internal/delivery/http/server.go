package http

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	fiberSwagger "github.com/swaggo/fiber-swagger"
	"go.uber.org/zap"

	"github.com/cyclemap/internal/config"
	"github.com/cyclemap/internal/delivery/http/handler"
	"github.com/cyclemap/internal/delivery/http/middleware"
	"github.com/cyclemap/internal/metrics"
	"github.com/cyclemap/internal/pkg/errors"
	"github.com/cyclemap/internal/pkg/utils"
)

// HealthCheck - проверка зависимости для /api/v1/health
type HealthCheck func(ctx context.Context) error

// Server - HTTP сервер на основе Fiber
type Server struct {
	app     *fiber.App
	config  *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	healthChecks map[string]HealthCheck

	// Handlers
	networkHandler *handler.NetworkHandler
	sessionHandler *handler.SessionHandler
	pageHandler    *handler.PageHandler
}

// NewServer - создание нового HTTP сервера
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	m *metrics.Metrics,
	networkHandler *handler.NetworkHandler,
	sessionHandler *handler.SessionHandler,
	pageHandler *handler.PageHandler,
) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "CycleMap",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: customErrorHandler(logger),
	})

	s := &Server{
		app:            app,
		config:         cfg,
		logger:         logger,
		metrics:        m,
		healthChecks:   make(map[string]HealthCheck),
		networkHandler: networkHandler,
		sessionHandler: sessionHandler,
		pageHandler:    pageHandler,
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

// AddHealthCheck регистрирует проверку зависимости; вызывать до Start
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.healthChecks[name] = check
}

// App - fiber приложение (для тестов)
func (s *Server) App() *fiber.App {
	return s.app
}

// setupMiddlewares - настройка middleware
func (s *Server) setupMiddlewares() {
	s.app.Use(middleware.Recovery(s.logger))
	s.app.Use(middleware.Logger(s.logger, s.metrics))
	s.app.Use(middleware.CORS())
	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
}

// setupRoutes - настройка маршрутов
func (s *Server) setupRoutes() {
	// Swagger documentation route
	s.app.Get("/swagger/*", fiberSwagger.WrapHandler)

	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	// HTML pages
	if s.pageHandler != nil {
		s.app.Get("/", s.pageHandler.Listing)
		s.app.Get("/networks/:id", s.pageHandler.Network)
	}

	api := s.app.Group("/api/v1")

	// Health check
	api.Get("/health", s.health)

	// Network routes
	api.Get("/networks", s.networkHandler.ListNetworks)
	api.Get("/networks/features", s.networkHandler.GetNetworkFeatures)
	api.Get("/networks/:id", s.networkHandler.GetNetwork)
	api.Get("/networks/:id/stations/features", s.networkHandler.GetStationFeatures)
	api.Get("/countries", s.networkHandler.GetCountries)

	// View session routes
	sessions := api.Group("/sessions")
	sessions.Post("/", s.sessionHandler.CreateSession)
	sessions.Get("/:id", s.sessionHandler.GetSession)
	sessions.Delete("/:id", s.sessionHandler.CloseSession)
	sessions.Post("/:id/navigate", s.sessionHandler.Navigate)
	sessions.Post("/:id/filter", s.sessionHandler.SetFilter)
	sessions.Post("/:id/page", s.sessionHandler.SetPage)
	sessions.Post("/:id/hover", s.sessionHandler.Hover)
	sessions.Post("/:id/leave", s.sessionHandler.Leave)
	sessions.Post("/:id/click", s.sessionHandler.Click)
	sessions.Post("/:id/popup/action", s.sessionHandler.PopupAction)
	sessions.Post("/:id/popup/close", s.sessionHandler.ClosePopup)
	sessions.Post("/:id/select", s.sessionHandler.SelectStation)
	sessions.Post("/:id/locate", s.sessionHandler.Locate)
	sessions.Post("/:id/zoom", s.sessionHandler.Zoom)
}

// health - статус сервиса и зарегистрированных зависимостей
func (s *Server) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	checks := make(fiber.Map, len(s.healthChecks))
	for name, check := range s.healthChecks {
		if err := check(ctx); err != nil {
			s.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": checks,
		"time":   time.Now(),
	})
}

// Start - запуск HTTP сервера
func (s *Server) Start() error {
	addr := s.config.GetServerAddr()
	s.logger.Info("Starting HTTP server", zap.String("address", addr))
	return s.app.Listen(addr)
}

// Shutdown - graceful shutdown HTTP сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler - кастомный обработчик ошибок
func customErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return utils.SendError(c, appErr)
		}

		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if stderrors.As(err, &fe) {
			code = fe.Code
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error("HTTP Error",
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err),
			)
		}

		return c.Status(code).JSON(utils.ErrorResponse{
			Error: errors.New(codeFor(code), err.Error(), code),
		})
	}
}

func codeFor(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	}
	return "INTERNAL_SERVER_ERROR"
}
