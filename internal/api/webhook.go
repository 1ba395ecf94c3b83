package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-telegram/bot/models"
	"github.com/labstack/echo/v4"

	"github.com/caixaflow/caixabot/internal/platform"
)

// secretTokenHeader carries the shared webhook secret on pushed updates.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler receives pushed platform updates. It fails closed when a
// secret is configured and the header is absent or mismatched, and otherwise
// acknowledges immediately and processes asynchronously so slow downstream
// handling cannot make the platform consider the webhook unhealthy.
type WebhookHandler struct {
	log    *slog.Logger
	engine Engine
}

// NewWebhookHandler creates the webhook ingress handler.
func NewWebhookHandler(log *slog.Logger, engine Engine) *WebhookHandler {
	return &WebhookHandler{
		log:    log.With("component", "webhook_ingress"),
		engine: engine,
	}
}

// Register registers the webhook route.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook/telegram", h.receive)
}

func (h *WebhookHandler) receive(c echo.Context) error {
	if secret := h.engine.WebhookSecret(); secret != "" {
		got := c.Request().Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			h.log.Warn("Webhook request with missing or mismatched secret")
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook secret")
		}
	}

	var raw models.Update
	if err := c.Bind(&raw); err != nil {
		h.log.Warn("Webhook payload failed to parse", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "malformed update payload")
	}

	update, err := platform.FromTelegram(&raw)
	if err != nil {
		// Unsupported update kinds are acknowledged and dropped, matching
		// the polling path's ingress boundary.
		h.log.Debug("Dropping webhook update at ingress boundary", "error", err)
		return c.NoContent(http.StatusOK)
	}

	h.engine.HandleWebhookUpdate(update)
	return c.NoContent(http.StatusOK)
}
