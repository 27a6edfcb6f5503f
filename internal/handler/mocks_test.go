package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/senderpool/internal/campaign"
	"github.com/hitoshi/senderpool/internal/cooldown"
	"github.com/hitoshi/senderpool/internal/identity"
	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/repository"
	"github.com/hitoshi/senderpool/internal/schedule"
	"github.com/hitoshi/senderpool/internal/target"
)

// --- モック定義 ---

// mockIdentityService はIdentityServiceInterfaceのモック実装。
type mockIdentityService struct {
	createFn       func(ctx context.Context, in identity.CreateInput) (*model.Identity, error)
	getFn          func(ctx context.Context, id int64) (*identity.Info, error)
	listFn         func(ctx context.Context) ([]identity.Info, error)
	setStatusFn    func(ctx context.Context, id int64, status model.IdentityStatus) (*model.Identity, error)
	updateQuotasFn func(ctx context.Context, id int64, quotas model.Quotas) (*model.Identity, error)
}

func (m *mockIdentityService) Create(ctx context.Context, in identity.CreateInput) (*model.Identity, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return nil, nil
}

func (m *mockIdentityService) Get(ctx context.Context, id int64) (*identity.Info, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, nil
}

func (m *mockIdentityService) List(ctx context.Context) ([]identity.Info, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockIdentityService) SetStatus(ctx context.Context, id int64, status model.IdentityStatus) (*model.Identity, error) {
	if m.setStatusFn != nil {
		return m.setStatusFn(ctx, id, status)
	}
	return nil, nil
}

func (m *mockIdentityService) UpdateQuotas(ctx context.Context, id int64, quotas model.Quotas) (*model.Identity, error) {
	if m.updateQuotasFn != nil {
		return m.updateQuotasFn(ctx, id, quotas)
	}
	return nil, nil
}

// mockTargetService はTargetServiceInterfaceのモック実装。
type mockTargetService struct {
	importListFn func(ctx context.Context, in target.ImportInput) (*target.ImportResult, error)
	getListFn    func(ctx context.Context, id string) (*model.TargetList, []model.Target, error)
	listListsFn  func(ctx context.Context) ([]*model.TargetList, error)
	queryFn      func(ctx context.Context, kind model.ActionType, filter target.Availability, limit int) ([]target.Status, error)
	evaluateFn   func(ctx context.Context, rawTarget string, identityID int64, kind model.ActionType) (cooldown.Decision, error)
}

func (m *mockTargetService) ImportList(ctx context.Context, in target.ImportInput) (*target.ImportResult, error) {
	if m.importListFn != nil {
		return m.importListFn(ctx, in)
	}
	return nil, nil
}

func (m *mockTargetService) GetList(ctx context.Context, id string) (*model.TargetList, []model.Target, error) {
	if m.getListFn != nil {
		return m.getListFn(ctx, id)
	}
	return nil, nil, nil
}

func (m *mockTargetService) ListLists(ctx context.Context) ([]*model.TargetList, error) {
	if m.listListsFn != nil {
		return m.listListsFn(ctx)
	}
	return nil, nil
}

func (m *mockTargetService) Query(ctx context.Context, kind model.ActionType, filter target.Availability, limit int) ([]target.Status, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, kind, filter, limit)
	}
	return nil, nil
}

func (m *mockTargetService) Evaluate(ctx context.Context, rawTarget string, identityID int64, kind model.ActionType) (cooldown.Decision, error) {
	if m.evaluateFn != nil {
		return m.evaluateFn(ctx, rawTarget, identityID, kind)
	}
	return cooldown.Decision{}, nil
}

// mockCampaignService はCampaignServiceInterfaceのモック実装。
type mockCampaignService struct {
	createFn func(ctx context.Context, in campaign.CreateInput) (*model.Campaign, error)
	startFn  func(ctx context.Context, id string) (*campaign.StartResult, error)
	pauseFn  func(ctx context.Context, id string) (*model.Campaign, error)
	resumeFn func(ctx context.Context, id string) (*model.Campaign, error)
	cancelFn func(ctx context.Context, id string) (*model.Campaign, error)
	getFn    func(ctx context.Context, id string) (*model.Campaign, error)
	listFn   func(ctx context.Context) ([]*model.Campaign, error)
	itemsFn  func(ctx context.Context, id string, status model.QueueStatus, limit int) ([]*model.QueueItem, error)
}

func (m *mockCampaignService) Create(ctx context.Context, in campaign.CreateInput) (*model.Campaign, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return nil, nil
}

func (m *mockCampaignService) Start(ctx context.Context, id string) (*campaign.StartResult, error) {
	if m.startFn != nil {
		return m.startFn(ctx, id)
	}
	return nil, nil
}

func (m *mockCampaignService) Pause(ctx context.Context, id string) (*model.Campaign, error) {
	if m.pauseFn != nil {
		return m.pauseFn(ctx, id)
	}
	return nil, nil
}

func (m *mockCampaignService) Resume(ctx context.Context, id string) (*model.Campaign, error) {
	if m.resumeFn != nil {
		return m.resumeFn(ctx, id)
	}
	return nil, nil
}

func (m *mockCampaignService) Cancel(ctx context.Context, id string) (*model.Campaign, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, id)
	}
	return nil, nil
}

func (m *mockCampaignService) Get(ctx context.Context, id string) (*model.Campaign, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, nil
}

func (m *mockCampaignService) List(ctx context.Context) ([]*model.Campaign, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockCampaignService) Items(ctx context.Context, id string, status model.QueueStatus, limit int) ([]*model.QueueItem, error) {
	if m.itemsFn != nil {
		return m.itemsFn(ctx, id, status, limit)
	}
	return nil, nil
}

// mockPlanner はSchedulePlannerのモック実装。
type mockPlanner struct {
	window  schedule.WorkWindow
	todayFn func(ctx context.Context, now time.Time) (*schedule.DayPlan, error)
}

func (m *mockPlanner) Window() schedule.WorkWindow { return m.window }

func (m *mockPlanner) Today(ctx context.Context, now time.Time) (*schedule.DayPlan, error) {
	if m.todayFn != nil {
		return m.todayFn(ctx, now)
	}
	return &schedule.DayPlan{}, nil
}

// mockActivityReader はActivityReaderのモック実装。
type mockActivityReader struct {
	listFn func(ctx context.Context, filter repository.ActivityFilter) ([]*model.ActivityEntry, error)
}

func (m *mockActivityReader) List(ctx context.Context, filter repository.ActivityFilter) ([]*model.ActivityEntry, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, nil
}

// mockTemplateStore はTemplateStoreのモック実装。
type mockTemplateStore struct {
	created []*model.CommentTemplate
	listFn  func(ctx context.Context, category string) ([]*model.CommentTemplate, error)
}

func (m *mockTemplateStore) Create(ctx context.Context, tmpl *model.CommentTemplate) error {
	m.created = append(m.created, tmpl)
	return nil
}

func (m *mockTemplateStore) ListActive(ctx context.Context, category string) ([]*model.CommentTemplate, error) {
	if m.listFn != nil {
		return m.listFn(ctx, category)
	}
	return nil, nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

// --- テストヘルパー ---

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// decodeBody はレスポンスボディを v にデコードするヘルパー。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
}

func sampleIdentity(id int64) *model.Identity {
	return &model.Identity{
		ID:             id,
		Name:           "sender-1",
		Email:          "sender1@example.com",
		BrowserProfile: "sender-1",
		Status:         model.IdentityStatusActive,
		Quotas: model.Quotas{
			Connect: model.Quota{Daily: 20, Weekly: 100},
			Like:    model.Quota{Daily: 50, Weekly: 250},
			Comment: model.Quota{Daily: 10, Weekly: 50},
		},
		CreatedAt:      time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}
