package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"forge/internal/httpapi/util"
	"forge/internal/httpkit"
	"forge/internal/models"
	"forge/internal/repositories"
)

type CreateTemplateRequest struct {
	Name       string           `json:"name"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	Background string           `json:"background,omitempty"`
	Elements   []models.Element `json:"elements"`
}

func (h *Handler) PostTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateTemplateRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid json body", nil)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "name is required", map[string]any{"field": "name"})
		return
	}

	tpl := &models.Template{
		ID:         util.NewID("tpl"),
		Name:       req.Name,
		Width:      req.Width,
		Height:     req.Height,
		Background: req.Background,
		Elements:   req.Elements,
	}
	if err := tpl.Validate(); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	if err := h.templates.Create(ctx, tpl); err != nil {
		if errors.Is(err, repositories.ErrTemplateNameExists) {
			httpkit.WriteErr(w, 409, "TEMPLATE_NAME_EXISTS", "template name already exists", map[string]any{"field": "name"})
			return
		}
		h.log.FromContext(ctx).Error("template insert failed", "error", err.Error())
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db insert failed", nil)
		return
	}

	httpkit.WriteJSON(w, 201, map[string]any{"template": tpl})
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	templates, err := h.templates.List(ctx)
	if err != nil {
		h.log.FromContext(ctx).Error("template list failed", "error", err.Error())
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db query failed", nil)
		return
	}
	if templates == nil {
		templates = []models.Template{}
	}

	httpkit.WriteJSON(w, 200, map[string]any{"templates": templates})
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	templateID := chi.URLParam(r, "templateId")

	tpl, err := h.templates.Get(ctx, templateID)
	if err != nil {
		httpkit.WriteErr(w, 404, "TEMPLATE_NOT_FOUND", "template not found", map[string]any{"template_id": templateID})
		return
	}

	httpkit.WriteJSON(w, 200, map[string]any{"template": tpl})
}

func (h *Handler) PutTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	templateID := chi.URLParam(r, "templateId")

	var req CreateTemplateRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid json body", nil)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "name is required", map[string]any{"field": "name"})
		return
	}

	tpl := &models.Template{
		ID:         templateID,
		Name:       req.Name,
		Width:      req.Width,
		Height:     req.Height,
		Background: req.Background,
		Elements:   req.Elements,
	}
	if err := tpl.Validate(); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	if err := h.templates.Update(ctx, tpl); err != nil {
		switch {
		case errors.Is(err, repositories.ErrTemplateNotFound):
			httpkit.WriteErr(w, 404, "TEMPLATE_NOT_FOUND", "template not found", map[string]any{"template_id": templateID})
		case errors.Is(err, repositories.ErrTemplateNameExists):
			httpkit.WriteErr(w, 409, "TEMPLATE_NAME_EXISTS", "template name already exists", map[string]any{"field": "name"})
		default:
			h.log.FromContext(ctx).Error("template update failed", "error", err.Error())
			httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db update failed", nil)
		}
		return
	}

	h.GetTemplate(w, r)
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	templateID := chi.URLParam(r, "templateId")

	if err := h.templates.Delete(ctx, templateID); err != nil {
		if errors.Is(err, repositories.ErrTemplateNotFound) {
			httpkit.WriteErr(w, 404, "TEMPLATE_NOT_FOUND", "template not found", map[string]any{"template_id": templateID})
			return
		}
		h.log.FromContext(ctx).Error("template delete failed", "error", err.Error())
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db delete failed", nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
