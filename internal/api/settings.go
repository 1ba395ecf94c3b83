package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/caixaflow/caixabot/internal/config"
)

// SettingsHandler exposes the administrative settings surface: the bot
// configuration is read and replaced as a whole, and a replace implicitly
// re-establishes ingestion with the new value.
type SettingsHandler struct {
	log    *slog.Logger
	engine Engine
}

// NewSettingsHandler creates the settings handler.
func NewSettingsHandler(log *slog.Logger, engine Engine) *SettingsHandler {
	return &SettingsHandler{
		log:    log.With("component", "settings_api"),
		engine: engine,
	}
}

// Register registers the settings routes.
func (h *SettingsHandler) Register(e *echo.Echo) {
	e.GET("/api/settings", h.get)
	e.PUT("/api/settings", h.replace)
}

func (h *SettingsHandler) get(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Settings())
}

func (h *SettingsHandler) replace(c echo.Context) error {
	var settings config.BotSettings
	if err := c.Bind(&settings); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed settings payload")
	}

	if err := settings.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.engine.Reconfigure(c.Request().Context(), settings); err != nil {
		h.log.Error("Settings replace failed", "error", err)
		if strings.Contains(err.Error(), "validation") {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, "failed to re-establish ingestion: "+err.Error())
	}

	return c.JSON(http.StatusOK, h.engine.Settings())
}
