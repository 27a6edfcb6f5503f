package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/senderpool/internal/campaign"
	"github.com/hitoshi/senderpool/internal/model"
)

// CampaignServiceInterface はキャンペーンハンドラーが必要とするサービスインターフェース。
type CampaignServiceInterface interface {
	Create(ctx context.Context, in campaign.CreateInput) (*model.Campaign, error)
	Start(ctx context.Context, id string) (*campaign.StartResult, error)
	Pause(ctx context.Context, id string) (*model.Campaign, error)
	Resume(ctx context.Context, id string) (*model.Campaign, error)
	Cancel(ctx context.Context, id string) (*model.Campaign, error)
	Get(ctx context.Context, id string) (*model.Campaign, error)
	List(ctx context.Context) ([]*model.Campaign, error)
	Items(ctx context.Context, id string, status model.QueueStatus, limit int) ([]*model.QueueItem, error)
}

// CampaignHandler はキャンペーン管理のHTTPハンドラー。
type CampaignHandler struct {
	service CampaignServiceInterface
}

// NewCampaignHandler はCampaignHandlerを生成する。
func NewCampaignHandler(service CampaignServiceInterface) *CampaignHandler {
	return &CampaignHandler{service: service}
}

// createCampaignRequest はキャンペーン作成リクエストのボディ。
type createCampaignRequest struct {
	Name        string  `json:"name"`
	ListID      string  `json:"list_id"`
	ActionType  string  `json:"action_type"`
	IdentityIDs []int64 `json:"identity_ids"`
}

// startCampaignResponse はキャンペーン開始のAPIレスポンス。
type startCampaignResponse struct {
	Campaign    campaignResponse `json:"campaign"`
	Queued      int              `json:"queued"`
	InCooldown  int              `json:"in_cooldown"`
	PerIdentity map[int64]int    `json:"per_identity"`
}

// List はキャンペーン一覧を返す。
// GET /api/campaigns
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]campaignResponse, len(campaigns))
	for i, c := range campaigns {
		resp[i] = toCampaignResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はdraft状態のキャンペーンを作成する。
// POST /api/campaigns
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	kind, err := model.ParseActionType(req.ActionType)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	c, err := h.service.Create(r.Context(), campaign.CreateInput{
		Name:        req.Name,
		ListID:      req.ListID,
		ActionType:  kind,
		IdentityIDs: req.IdentityIDs,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCampaignResponse(c))
}

// Get はキャンペーンを返す。
// GET /api/campaigns/{id}
func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCampaignResponse(c))
}

// Start はターゲットを配分してキャンペーンを開始する。
// POST /api/campaigns/{id}/start
func (h *CampaignHandler) Start(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startCampaignResponse{
		Campaign:    toCampaignResponse(res.Campaign),
		Queued:      res.Queued,
		InCooldown:  len(res.Excluded),
		PerIdentity: res.PerIdentity,
	})
}

// Pause はキャンペーンを一時停止する。
// POST /api/campaigns/{id}/pause
func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Pause)
}

// Resume は一時停止中のキャンペーンを再開する。
// POST /api/campaigns/{id}/resume
func (h *CampaignHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Resume)
}

// Cancel はキャンペーンをキャンセルする。
// POST /api/campaigns/{id}/cancel
func (h *CampaignHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

// Items はキャンペーンのキュー項目を返す。
// GET /api/campaigns/{id}/items?status=pending&limit=100
func (h *CampaignHandler) Items(w http.ResponseWriter, r *http.Request) {
	status := model.QueueStatus(r.URL.Query().Get("status"))
	if status != "" && !validQueueStatus(status) {
		handleServiceError(w, model.NewInvalidRequestError("不明なキュー状態です: "+string(status)))
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	items, err := h.service.Items(r.Context(), chi.URLParam(r, "id"), status, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]queueItemResponse, len(items))
	for i, it := range items {
		resp[i] = toQueueItemResponse(it)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CampaignHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*model.Campaign, error)) {
	c, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCampaignResponse(c))
}

func validQueueStatus(s model.QueueStatus) bool {
	switch s {
	case model.QueueStatusPending, model.QueueStatusScheduled, model.QueueStatusRunning,
		model.QueueStatusCompleted, model.QueueStatusFailed,
		model.QueueStatusSkippedCooldown, model.QueueStatusSkipped:
		return true
	}
	return false
}
