package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/senderpool/internal/cooldown"
	"github.com/hitoshi/senderpool/internal/identity"
	"github.com/hitoshi/senderpool/internal/middleware"
	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/target"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// --- レスポンス型 ---

type quotaBody struct {
	Daily  int `json:"daily"`
	Weekly int `json:"weekly"`
}

type quotasBody struct {
	Connect quotaBody `json:"connect"`
	Like    quotaBody `json:"like"`
	Comment quotaBody `json:"comment"`
}

type countersBody struct {
	Connects int `json:"connects"`
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
}

// identityResponse はアイデンティティのAPIレスポンス。
type identityResponse struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	Email          string        `json:"email"`
	BrowserProfile string        `json:"browser_profile"`
	Status         string        `json:"status"`
	Quotas         quotasBody    `json:"quotas"`
	Today          *countersBody `json:"today,omitempty"`
	LastActiveAt   *time.Time    `json:"last_active_at"`
	CreatedAt      time.Time     `json:"created_at"`
}

// registryResponse はレジストリエントリのAPIレスポンス。
type registryResponse struct {
	LastActionType       string    `json:"last_action_type"`
	LastActionIdentityID int64     `json:"last_action_identity_id"`
	LastActionAt         time.Time `json:"last_action_at"`
	CooldownExpiresAt    time.Time `json:"cooldown_expires_at"`
}

// targetStatusResponse はターゲットとクールダウン状態のAPIレスポンス。
type targetStatusResponse struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Headline         string            `json:"headline"`
	Company          string            `json:"company"`
	Available        bool              `json:"available"`
	RemainingSeconds int64             `json:"remaining_seconds"`
	Registry         *registryResponse `json:"registry"`
}

// decisionResponse はクールダウン判定のAPIレスポンス。
type decisionResponse struct {
	Allowed          bool       `json:"allowed"`
	Reason           string     `json:"reason"`
	BlockedUntil     *time.Time `json:"blocked_until,omitempty"`
	BlockingIdentity int64      `json:"blocking_identity_id,omitempty"`
}

type targetResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Headline string `json:"headline"`
	Company  string `json:"company"`
}

// listResponse はターゲットリストのAPIレスポンス。
type listResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	TargetCount int              `json:"target_count"`
	CreatedAt   time.Time        `json:"created_at"`
	Targets     []targetResponse `json:"targets,omitempty"`
}

type campaignCountersBody struct {
	Total      int `json:"total"`
	InCooldown int `json:"in_cooldown"`
	Processed  int `json:"processed"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// campaignResponse はキャンペーンのAPIレスポンス。
type campaignResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	ListID      string               `json:"list_id"`
	ActionType  string               `json:"action_type"`
	IdentityIDs []int64              `json:"identity_ids"`
	Status      string               `json:"status"`
	Counters    campaignCountersBody `json:"counters"`
	CreatedAt   time.Time            `json:"created_at"`
	StartedAt   *time.Time           `json:"started_at"`
	CompletedAt *time.Time           `json:"completed_at"`
}

// queueItemResponse はキュー項目のAPIレスポンス。
type queueItemResponse struct {
	ID          string     `json:"id"`
	IdentityID  int64      `json:"identity_id"`
	TargetID    string     `json:"target_id"`
	TargetName  string     `json:"target_name"`
	ActionType  string     `json:"action_type"`
	Status      string     `json:"status"`
	Payload     string     `json:"payload,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// activityResponse はアクティビティログのAPIレスポンス。
type activityResponse struct {
	ID           string    `json:"id"`
	CampaignID   string    `json:"campaign_id"`
	IdentityID   int64     `json:"identity_id"`
	IdentityName string    `json:"identity_name"`
	TargetID     string    `json:"target_id"`
	TargetName   string    `json:"target_name"`
	ActionType   string    `json:"action_type"`
	Status       string    `json:"status"`
	Details      string    `json:"details"`
	CreatedAt    time.Time `json:"created_at"`
}

// --- 変換 ---

func toQuotasBody(q model.Quotas) quotasBody {
	return quotasBody{
		Connect: quotaBody{Daily: q.Connect.Daily, Weekly: q.Connect.Weekly},
		Like:    quotaBody{Daily: q.Like.Daily, Weekly: q.Like.Weekly},
		Comment: quotaBody{Daily: q.Comment.Daily, Weekly: q.Comment.Weekly},
	}
}

func (b quotasBody) toModel() model.Quotas {
	return model.Quotas{
		Connect: model.Quota{Daily: b.Connect.Daily, Weekly: b.Connect.Weekly},
		Like:    model.Quota{Daily: b.Like.Daily, Weekly: b.Like.Weekly},
		Comment: model.Quota{Daily: b.Comment.Daily, Weekly: b.Comment.Weekly},
	}
}

func toIdentityResponse(i *model.Identity) identityResponse {
	return identityResponse{
		ID:             i.ID,
		Name:           i.Name,
		Email:          i.Email,
		BrowserProfile: i.BrowserProfile,
		Status:         string(i.Status),
		Quotas:         toQuotasBody(i.Quotas),
		LastActiveAt:   i.LastActiveAt,
		CreatedAt:      i.CreatedAt,
	}
}

func toIdentityInfoResponse(info identity.Info) identityResponse {
	resp := toIdentityResponse(info.Identity)
	resp.Today = &countersBody{
		Connects: info.Today.Connects,
		Likes:    info.Today.Likes,
		Comments: info.Today.Comments,
	}
	return resp
}

func toTargetStatusResponse(s target.Status) targetStatusResponse {
	resp := targetStatusResponse{
		ID:               s.Target.ID,
		Name:             s.Target.Name,
		Headline:         s.Target.Headline,
		Company:          s.Target.Company,
		Available:        s.Available,
		RemainingSeconds: int64(s.Remaining / time.Second),
	}
	if e := s.Entry; e != nil {
		resp.Registry = &registryResponse{
			LastActionType:       string(e.LastActionType),
			LastActionIdentityID: e.LastActionIdentityID,
			LastActionAt:         e.LastActionAt,
			CooldownExpiresAt:    e.CooldownExpiresAt,
		}
	}
	return resp
}

func toDecisionResponse(d cooldown.Decision) decisionResponse {
	resp := decisionResponse{Allowed: d.Allowed, Reason: string(d.Reason)}
	if d.Reason == cooldown.ReasonCooldownActive {
		until := d.BlockedUntil
		resp.BlockedUntil = &until
		resp.BlockingIdentity = d.BlockingIdentity
	}
	return resp
}

func toListResponse(l *model.TargetList, members []model.Target) listResponse {
	resp := listResponse{
		ID:          l.ID,
		Name:        l.Name,
		Description: l.Description,
		TargetCount: l.TargetCount,
		CreatedAt:   l.CreatedAt,
	}
	for _, t := range members {
		resp.Targets = append(resp.Targets, targetResponse{ID: t.ID, Name: t.Name, Headline: t.Headline, Company: t.Company})
	}
	return resp
}

func toCampaignResponse(c *model.Campaign) campaignResponse {
	cnt := c.Counters
	return campaignResponse{
		ID:          c.ID,
		Name:        c.Name,
		ListID:      c.ListID,
		ActionType:  string(c.ActionType),
		IdentityIDs: c.IdentityIDs,
		Status:      string(c.Status),
		Counters: campaignCountersBody{
			Total: cnt.Total, InCooldown: cnt.InCooldown, Processed: cnt.Processed,
			Succeeded: cnt.Succeeded, Failed: cnt.Failed, Skipped: cnt.Skipped,
		},
		CreatedAt:   c.CreatedAt,
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
	}
}

func toQueueItemResponse(it *model.QueueItem) queueItemResponse {
	return queueItemResponse{
		ID:          it.ID,
		IdentityID:  it.IdentityID,
		TargetID:    it.TargetID,
		TargetName:  it.TargetName,
		ActionType:  string(it.ActionType),
		Status:      string(it.Status),
		Payload:     it.Payload,
		Error:       it.Error,
		CreatedAt:   it.CreatedAt,
		StartedAt:   it.StartedAt,
		CompletedAt: it.CompletedAt,
	}
}

func toActivityResponse(a *model.ActivityEntry) activityResponse {
	return activityResponse{
		ID:           a.ID,
		CampaignID:   a.CampaignID,
		IdentityID:   a.IdentityID,
		IdentityName: a.IdentityName,
		TargetID:     a.TargetID,
		TargetName:   a.TargetName,
		ActionType:   string(a.ActionType),
		Status:       string(a.Status),
		Details:      a.Details,
		CreatedAt:    a.CreatedAt,
	}
}

// --- ヘルパー関数 ---

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	middleware.WriteError(w, slog.Default(), err)
}

// parseIdentityID は数値のアイデンティティIDを解析する。失敗時は400を書き込みfalseを返す。
func parseIdentityID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		handleServiceError(w, model.NewInvalidRequestError("アイデンティティIDが不正です: "+raw))
		return 0, false
	}
	return id, true
}

// parseLimit はlimitクエリを解析する。未指定はデフォルト、上限を超える値は上限に丸める。
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		handleServiceError(w, model.NewInvalidRequestError("limit は正の整数で指定してください"))
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}
