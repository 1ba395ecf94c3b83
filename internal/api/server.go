// Package api provides the HTTP surface of the engine: the platform webhook
// ingress, the administrative settings endpoint, template CRUD, and the
// conversation/message read surface.
package api

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/caixaflow/caixabot/internal/bot"
	"github.com/caixaflow/caixabot/internal/config"
	"github.com/caixaflow/caixabot/internal/platform"
)

// Engine is the slice of the bot orchestrator the HTTP surface needs.
type Engine interface {
	Settings() config.BotSettings
	Reconfigure(ctx context.Context, settings config.BotSettings) error
	WebhookSecret() string
	HandleWebhookUpdate(u platform.Update)
	Phase() bot.Phase
}

// Handler registers routes on the Echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

// Server is the HTTP server (Echo) with the engine's handlers registered.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

// NewServer builds the Echo server with recovery, request logging, and the
// given handlers.
func NewServer(log *slog.Logger, addr string, handlers ...Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{
		echo:   e,
		addr:   addr,
		logger: log.With("component", "http_server"),
	}
}

// Start starts the HTTP server (blocks until shutdown).
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.addr)
	return s.echo.Start(s.addr)
}

// Stop gracefully shuts down the server using the given context.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
