package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/senderpool/internal/model"
)

// TemplateStore はコメントテンプレートの登録・参照インターフェース。
type TemplateStore interface {
	Create(ctx context.Context, tmpl *model.CommentTemplate) error
	ListActive(ctx context.Context, category string) ([]*model.CommentTemplate, error)
}

// TemplateHandler はコメントテンプレートのHTTPハンドラー。
type TemplateHandler struct {
	store TemplateStore
}

// NewTemplateHandler はTemplateHandlerを生成する。
func NewTemplateHandler(store TemplateStore) *TemplateHandler {
	return &TemplateHandler{store: store}
}

type templateRequest struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

type templateResponse struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Category   string `json:"category"`
	UsageCount int    `json:"usage_count"`
}

func toTemplateResponse(t *model.CommentTemplate) templateResponse {
	return templateResponse{ID: t.ID, Text: t.Text, Category: t.Category, UsageCount: t.UsageCount}
}

// List は有効なテンプレートを返す。
// GET /api/templates?category=hiring
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	templates, err := h.store.ListActive(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]templateResponse, len(templates))
	for i, t := range templates {
		resp[i] = toTemplateResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はテンプレートを登録する。
// POST /api/templates
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		handleServiceError(w, model.NewInvalidRequestError("テンプレート本文は必須です"))
		return
	}

	tmpl := &model.CommentTemplate{
		ID:       uuid.NewString(),
		Text:     text,
		Category: strings.TrimSpace(req.Category),
		Active:   true,
	}
	if err := h.store.Create(r.Context(), tmpl); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateResponse(tmpl))
}
