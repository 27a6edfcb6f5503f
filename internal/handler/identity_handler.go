package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/senderpool/internal/identity"
	"github.com/hitoshi/senderpool/internal/model"
)

// IdentityServiceInterface はアイデンティティハンドラーが必要とするサービスインターフェース。
type IdentityServiceInterface interface {
	Create(ctx context.Context, in identity.CreateInput) (*model.Identity, error)
	Get(ctx context.Context, id int64) (*identity.Info, error)
	List(ctx context.Context) ([]identity.Info, error)
	SetStatus(ctx context.Context, id int64, status model.IdentityStatus) (*model.Identity, error)
	UpdateQuotas(ctx context.Context, id int64, quotas model.Quotas) (*model.Identity, error)
}

// IdentityHandler はアイデンティティ管理のHTTPハンドラー。
type IdentityHandler struct {
	service IdentityServiceInterface
}

// NewIdentityHandler はIdentityHandlerを生成する。
func NewIdentityHandler(service IdentityServiceInterface) *IdentityHandler {
	return &IdentityHandler{service: service}
}

// createIdentityRequest はアイデンティティ作成リクエストのボディ。
type createIdentityRequest struct {
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	BrowserProfile string      `json:"browser_profile"`
	Quotas         *quotasBody `json:"quotas"`
}

// List はアイデンティティ一覧を当日のアクション数付きで返す。
// GET /api/identities
func (h *IdentityHandler) List(w http.ResponseWriter, r *http.Request) {
	infos, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]identityResponse, len(infos))
	for i, info := range infos {
		resp[i] = toIdentityInfoResponse(info)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はアイデンティティを登録する。
// POST /api/identities
func (h *IdentityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createIdentityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := identity.CreateInput{Name: req.Name, Email: req.Email, BrowserProfile: req.BrowserProfile}
	if req.Quotas != nil {
		q := req.Quotas.toModel()
		in.Quotas = &q
	}
	created, err := h.service.Create(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIdentityResponse(created))
}

// Get はアイデンティティを返す。
// GET /api/identities/{id}
func (h *IdentityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIdentityID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	info, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityInfoResponse(*info))
}

// Pause はアイデンティティを一時停止する。
// POST /api/identities/{id}/pause
func (h *IdentityHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, model.IdentityStatusPaused)
}

// Resume は一時停止または認証期限切れのアイデンティティを再開する。
// POST /api/identities/{id}/resume
func (h *IdentityHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, model.IdentityStatusActive)
}

// Expire はアイデンティティを認証期限切れとして記録する。
// POST /api/identities/{id}/expire
func (h *IdentityHandler) Expire(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, model.IdentityStatusCredentialExpired)
}

// UpdateQuotas はアクション種別ごとの上限を変更する。
// PUT /api/identities/{id}/quotas
func (h *IdentityHandler) UpdateQuotas(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIdentityID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req quotasBody
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.service.UpdateQuotas(r.Context(), id, req.toModel())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityResponse(updated))
}

func (h *IdentityHandler) setStatus(w http.ResponseWriter, r *http.Request, status model.IdentityStatus) {
	id, ok := parseIdentityID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	updated, err := h.service.SetStatus(r.Context(), id, status)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityResponse(updated))
}
