package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/caixaflow/caixabot/internal/database"
)

// ConversationHandler exposes read-only access to stored conversations and
// their message history. Both listings page newest-first with a before-ID
// cursor.
type ConversationHandler struct {
	log   *slog.Logger
	store database.Store
}

// NewConversationHandler creates the conversation listing handler.
func NewConversationHandler(log *slog.Logger, store database.Store) *ConversationHandler {
	return &ConversationHandler{
		log:   log.With("component", "conversation_api"),
		store: store,
	}
}

// Register registers the conversation routes.
func (h *ConversationHandler) Register(e *echo.Echo) {
	e.GET("/api/conversations", h.list)
	e.GET("/api/conversations/:id/messages", h.messages)
	e.PUT("/api/messages/:id/read", h.markRead)
}

type conversationResponse struct {
	ID             uint      `json:"id"`
	PlatformChatID int64     `json:"platform_chat_id"`
	Kind           string    `json:"kind"`
	DisplayName    string    `json:"display_name"`
	Handle         string    `json:"handle"`
	MessageCount   int64     `json:"message_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type messageResponse struct {
	ID                uint      `json:"id"`
	PlatformMessageID int64     `json:"platform_message_id"`
	Direction         string    `json:"direction"`
	Origin            string    `json:"origin"`
	Body              string    `json:"body"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

func (h *ConversationHandler) list(c echo.Context) error {
	limit, before, err := pageParams(c)
	if err != nil {
		return err
	}

	convs, err := h.store.ListConversations(c.Request().Context(), limit, before)
	if err != nil {
		h.log.Error("Failed to list conversations", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list conversations")
	}

	out := make([]conversationResponse, 0, len(convs))
	for i := range convs {
		conv := &convs[i]
		out = append(out, conversationResponse{
			ID:             conv.ID,
			PlatformChatID: conv.PlatformChatID,
			Kind:           conv.Kind,
			DisplayName:    conv.DisplayName,
			Handle:         conv.Handle,
			MessageCount:   conv.MessageCount,
			UpdatedAt:      conv.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ConversationHandler) messages(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	limit, before, err := pageParams(c)
	if err != nil {
		return err
	}

	msgs, err := h.store.ListMessages(c.Request().Context(), id, limit, before)
	if err != nil {
		h.log.Error("Failed to list messages", "conversation_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}

	out := make([]messageResponse, 0, len(msgs))
	for i := range msgs {
		msg := &msgs[i]
		out = append(out, messageResponse{
			ID:                msg.ID,
			PlatformMessageID: msg.PlatformMessageID,
			Direction:         msg.Direction,
			Origin:            msg.Origin,
			Body:              msg.Body,
			Status:            msg.Status,
			CreatedAt:         msg.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ConversationHandler) markRead(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	err = h.store.MarkMessageRead(c.Request().Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "message not found or not outbound")
	}
	if err != nil {
		h.log.Error("Failed to mark message read", "message_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark message read")
	}

	return c.NoContent(http.StatusNoContent)
}

// pageParams reads the optional limit and before query parameters. Zero
// values delegate defaulting to the store.
func pageParams(c echo.Context) (int, uint, error) {
	var (
		limit  int
		before uint64
	)

	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = v
	}
	if raw := c.QueryParam("before"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid before cursor")
		}
		before = v
	}

	return limit, uint(before), nil
}
