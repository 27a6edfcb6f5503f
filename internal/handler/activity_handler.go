package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/repository"
)

// ActivityReader はアクティビティログの参照インターフェース。
type ActivityReader interface {
	List(ctx context.Context, filter repository.ActivityFilter) ([]*model.ActivityEntry, error)
}

// ActivityHandler はアクティビティログのHTTPハンドラー。
type ActivityHandler struct {
	reader ActivityReader
}

// NewActivityHandler はActivityHandlerを生成する。
func NewActivityHandler(reader ActivityReader) *ActivityHandler {
	return &ActivityHandler{reader: reader}
}

// List はアクティビティログを新しい順に返す。
// GET /api/activity?campaign_id=...&identity_id=1&limit=100
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ActivityFilter{CampaignID: strings.TrimSpace(q.Get("campaign_id"))}
	if raw := q.Get("identity_id"); raw != "" {
		id, ok := parseIdentityID(w, raw)
		if !ok {
			return
		}
		filter.IdentityID = id
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	filter.Limit = limit

	entries, err := h.reader.List(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]activityResponse, len(entries))
	for i, e := range entries {
		resp[i] = toActivityResponse(e)
	}
	writeJSON(w, http.StatusOK, resp)
}
