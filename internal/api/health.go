package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/caixaflow/caixabot/internal/database"
)

// HealthHandler reports process liveness: database reachability plus the
// current ingestion phase.
type HealthHandler struct {
	engine Engine
	store  database.Store
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler(engine Engine, store database.Store) *HealthHandler {
	return &HealthHandler{engine: engine, store: store}
}

// Register registers the health route.
func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.health)
}

func (h *HealthHandler) health(c echo.Context) error {
	status := http.StatusOK
	dbStatus := "ok"
	if err := h.store.Ping(c.Request().Context()); err != nil {
		status = http.StatusServiceUnavailable
		dbStatus = "unreachable"
	}

	return c.JSON(status, map[string]string{
		"database":  dbStatus,
		"ingestion": h.engine.Phase().String(),
	})
}
