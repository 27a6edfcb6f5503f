package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/senderpool/internal/cooldown"
	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/target"
)

// TargetServiceInterface はターゲット・リストハンドラーが必要とするサービスインターフェース。
type TargetServiceInterface interface {
	ImportList(ctx context.Context, in target.ImportInput) (*target.ImportResult, error)
	GetList(ctx context.Context, id string) (*model.TargetList, []model.Target, error)
	ListLists(ctx context.Context) ([]*model.TargetList, error)
	Query(ctx context.Context, kind model.ActionType, filter target.Availability, limit int) ([]target.Status, error)
	Evaluate(ctx context.Context, rawTarget string, identityID int64, kind model.ActionType) (cooldown.Decision, error)
}

// TargetHandler はターゲットとターゲットリストのHTTPハンドラー。
type TargetHandler struct {
	service TargetServiceInterface
}

// NewTargetHandler はTargetHandlerを生成する。
func NewTargetHandler(service TargetServiceInterface) *TargetHandler {
	return &TargetHandler{service: service}
}

// importListRequest はリスト取り込みリクエストのボディ。
type importListRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Targets     []struct {
		URL      string `json:"url"`
		Name     string `json:"name"`
		Headline string `json:"headline"`
		Company  string `json:"company"`
	} `json:"targets"`
}

type importListResponse struct {
	List       listResponse `json:"list"`
	Duplicates int          `json:"duplicates"`
	Invalid    []string     `json:"invalid"`
}

// ListTargets はターゲットをクールダウン状態付きで返す。
// GET /api/targets?action=connect&status=available|blocked
func (h *TargetHandler) ListTargets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := parseActionParam(q.Get("action"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	statuses, err := h.service.Query(r.Context(), kind, target.Availability(q.Get("status")), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]targetStatusResponse, len(statuses))
	for i, s := range statuses {
		resp[i] = toTargetStatusResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Evaluate はターゲットに対する実行可否を判定する。レジストリは更新しない。
// GET /api/targets/evaluate?target=...&identity_id=1&action=like
func (h *TargetHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := parseActionParam(q.Get("action"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	identityID, ok := parseIdentityID(w, q.Get("identity_id"))
	if !ok {
		return
	}

	d, err := h.service.Evaluate(r.Context(), q.Get("target"), identityID, kind)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDecisionResponse(d))
}

// ListLists はターゲットリスト一覧を返す。
// GET /api/lists
func (h *TargetHandler) ListLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.service.ListLists(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]listResponse, len(lists))
	for i, l := range lists {
		resp[i] = toListResponse(l, nil)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ImportList はプロフィールURLのJSONからリストを作成する。
// POST /api/lists
func (h *TargetHandler) ImportList(w http.ResponseWriter, r *http.Request) {
	var req importListRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := target.ImportInput{Name: req.Name, Description: req.Description}
	for _, t := range req.Targets {
		in.Targets = append(in.Targets, target.ImportEntry{URL: t.URL, Name: t.Name, Headline: t.Headline, Company: t.Company})
	}
	res, err := h.service.ImportList(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, importListResponse{
		List:       toListResponse(res.List, nil),
		Duplicates: res.Duplicates,
		Invalid:    append([]string{}, res.Invalid...),
	})
}

// GetList はリストをメンバー付きで返す。
// GET /api/lists/{id}
func (h *TargetHandler) GetList(w http.ResponseWriter, r *http.Request) {
	list, members, err := h.service.GetList(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListResponse(list, members))
}

// parseActionParam はactionクエリを解析する。必須。
func parseActionParam(raw string) (model.ActionType, error) {
	return model.ParseActionType(strings.ToLower(strings.TrimSpace(raw)))
}
