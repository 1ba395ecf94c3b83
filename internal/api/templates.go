package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/caixaflow/caixabot/internal/database"
)

// TemplateHandler exposes CRUD for stored message templates. Delete is hard;
// there is no soft-delete.
type TemplateHandler struct {
	log   *slog.Logger
	store database.Store
}

// NewTemplateHandler creates the template CRUD handler.
func NewTemplateHandler(log *slog.Logger, store database.Store) *TemplateHandler {
	return &TemplateHandler{
		log:   log.With("component", "template_api"),
		store: store,
	}
}

// Register registers the template routes.
func (h *TemplateHandler) Register(e *echo.Echo) {
	e.GET("/api/templates", h.list)
	e.POST("/api/templates", h.create)
	e.GET("/api/templates/:id", h.get)
	e.PUT("/api/templates/:id", h.update)
	e.DELETE("/api/templates/:id", h.delete)
}

type templatePayload struct {
	Name     string `json:"name"`
	Body     string `json:"body"`
	Category string `json:"category"`
	Active   bool   `json:"active"`
}

type templateResponse struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Body     string `json:"body"`
	Category string `json:"category"`
	Active   bool   `json:"active"`
}

func toResponse(t *database.Template) templateResponse {
	return templateResponse{
		ID:       t.ID,
		Name:     t.Name,
		Body:     t.Body,
		Category: t.Category,
		Active:   t.Active,
	}
}

func (h *TemplateHandler) list(c echo.Context) error {
	templates, err := h.store.ListTemplates(c.Request().Context())
	if err != nil {
		h.log.Error("Failed to list templates", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list templates")
	}

	out := make([]templateResponse, 0, len(templates))
	for i := range templates {
		out = append(out, toResponse(&templates[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *TemplateHandler) create(c echo.Context) error {
	var payload templatePayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed template payload")
	}
	if payload.Name == "" || payload.Body == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "template name and body are required")
	}

	tpl := &database.Template{
		Name:     payload.Name,
		Body:     payload.Body,
		Category: payload.Category,
		Active:   payload.Active,
	}
	if err := h.store.CreateTemplate(c.Request().Context(), tpl); err != nil {
		h.log.Error("Failed to create template", "name", payload.Name, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create template")
	}

	return c.JSON(http.StatusCreated, toResponse(tpl))
}

func (h *TemplateHandler) get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	tpl, err := h.store.GetTemplate(c.Request().Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "template not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get template")
	}

	return c.JSON(http.StatusOK, toResponse(tpl))
}

func (h *TemplateHandler) update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var payload templatePayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed template payload")
	}
	if payload.Name == "" || payload.Body == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "template name and body are required")
	}

	tpl := &database.Template{
		ID:       id,
		Name:     payload.Name,
		Body:     payload.Body,
		Category: payload.Category,
		Active:   payload.Active,
	}
	err = h.store.UpdateTemplate(c.Request().Context(), tpl)
	if errors.Is(err, database.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "template not found")
	}
	if err != nil {
		h.log.Error("Failed to update template", "id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update template")
	}

	return c.JSON(http.StatusOK, toResponse(tpl))
}

func (h *TemplateHandler) delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	err = h.store.DeleteTemplate(c.Request().Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "template not found")
	}
	if err != nil {
		h.log.Error("Failed to delete template", "id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete template")
	}

	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}
