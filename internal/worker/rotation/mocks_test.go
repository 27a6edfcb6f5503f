package rotation

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/senderpool/internal/automation"
	"github.com/hitoshi/senderpool/internal/cooldown"
	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/quota"
	"github.com/hitoshi/senderpool/internal/schedule"
	"github.com/hitoshi/senderpool/internal/session"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// --- アイデンティティ ---

type mockIdentityRepo struct {
	mu          sync.Mutex
	identity    *model.Identity
	findErr     error
	statusCalls []model.IdentityStatus
	touched     int
}

func (m *mockIdentityRepo) Create(ctx context.Context, identity *model.Identity) error { return nil }

func (m *mockIdentityRepo) FindByID(ctx context.Context, id int64) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.identity == nil || m.identity.ID != id {
		return nil, nil
	}
	cp := *m.identity
	return &cp, nil
}

func (m *mockIdentityRepo) List(ctx context.Context) ([]*model.Identity, error) {
	return []*model.Identity{m.identity}, nil
}

func (m *mockIdentityRepo) Count(ctx context.Context) (int, error) { return 1, nil }

func (m *mockIdentityRepo) UpdateStatus(ctx context.Context, id int64, status model.IdentityStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls = append(m.statusCalls, status)
	if m.identity != nil {
		m.identity.Status = status
	}
	return nil
}

func (m *mockIdentityRepo) UpdateQuotas(ctx context.Context, id int64, quotas model.Quotas) error {
	return nil
}

func (m *mockIdentityRepo) TouchLastActive(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched++
	return nil
}

// --- キュー ---

// fakeQueue は状態を持つキューの模擬実装。
type fakeQueue struct {
	mu            sync.Mutex
	items         []*model.QueueItem
	activities    []*model.ActivityEntry
	failOpenCalls []int64
	skipReason    string
}

func (q *fakeQueue) find(id string) *model.QueueItem {
	for _, it := range q.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (q *fakeQueue) NextPending(ctx context.Context, identityID int64) (*model.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.IdentityID == identityID && it.Status == model.QueueStatusPending {
			cp := *it
			return &cp, nil
		}
	}
	return nil, nil
}

func (q *fakeQueue) CountPendingByIdentity(ctx context.Context) (map[int64]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[int64]int)
	for _, it := range q.items {
		if it.Status == model.QueueStatusPending {
			out[it.IdentityID]++
		}
	}
	return out, nil
}

func (q *fakeQueue) MarkRunning(ctx context.Context, id string, at time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it := q.find(id)
	if it == nil || it.Status != model.QueueStatusPending {
		return false, nil
	}
	it.Status = model.QueueStatusRunning
	return true, nil
}

func (q *fakeQueue) Finish(ctx context.Context, item *model.QueueItem, entry *model.ActivityEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it := q.find(item.ID)
	if it == nil || it.Status.Terminal() {
		return nil
	}
	it.Status = item.Status
	it.Payload = item.Payload
	it.Error = item.Error
	if entry != nil {
		q.activities = append(q.activities, entry)
	}
	return nil
}

func (q *fakeQueue) FailOpenForIdentity(ctx context.Context, identityID int64, reason string, at time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failOpenCalls = append(q.failOpenCalls, identityID)
	n := 0
	for _, it := range q.items {
		if it.IdentityID == identityID && it.Status == model.QueueStatusPending {
			it.Status = model.QueueStatusFailed
			it.Error = reason
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) SkipRunning(ctx context.Context, reason string, at time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.skipReason = reason
	n := 0
	for _, it := range q.items {
		if it.Status == model.QueueStatusRunning {
			it.Status = model.QueueStatusSkipped
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) ListByCampaign(ctx context.Context, campaignID string, status model.QueueStatus, limit int) ([]*model.QueueItem, error) {
	return nil, nil
}

func (q *fakeQueue) status(id string) model.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.find(id).Status
}

func newItems(identityID int64, kind model.ActionType, targets ...string) []*model.QueueItem {
	items := make([]*model.QueueItem, len(targets))
	for i, t := range targets {
		items[i] = &model.QueueItem{
			ID:         t,
			Seq:        int64(i + 1),
			CampaignID: "camp-1",
			IdentityID: identityID,
			TargetID:   t,
			ActionType: kind,
			Status:     model.QueueStatusPending,
		}
	}
	return items
}

// --- キャンペーン ---

type mockCampaignRepo struct {
	mu       sync.Mutex
	drained  int
	drainErr error
}

func (m *mockCampaignRepo) Create(ctx context.Context, c *model.Campaign) error { return nil }
func (m *mockCampaignRepo) FindByID(ctx context.Context, id string) (*model.Campaign, error) {
	return nil, nil
}
func (m *mockCampaignRepo) List(ctx context.Context) ([]*model.Campaign, error) { return nil, nil }
func (m *mockCampaignRepo) Launch(ctx context.Context, id string, items []*model.QueueItem, inCooldown int, at time.Time) error {
	return nil
}
func (m *mockCampaignRepo) UpdateStatus(ctx context.Context, id string, from, to model.CampaignStatus) (bool, error) {
	return true, nil
}
func (m *mockCampaignRepo) Cancel(ctx context.Context, id string, at time.Time) (int, error) {
	return 0, nil
}
func (m *mockCampaignRepo) CompleteIfDrained(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drained++
	return false, m.drainErr
}

// --- セッション ---

type fakeSession struct {
	closed *int
}

func (s *fakeSession) ControlURL() string { return "ws://127.0.0.1:9222/devtools/browser/test" }
func (s *fakeSession) Close() error {
	*s.closed++
	return nil
}

type fakeLauncher struct {
	launchErr error
	launched  int
	closed    int
}

func (l *fakeLauncher) Launch(ctx context.Context, identity *model.Identity) (session.Session, error) {
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	l.launched++
	return &fakeSession{closed: &l.closed}, nil
}

// --- 実行レイヤー / コメント ---

type mockExecutor struct {
	mu        sync.Mutex
	performFn func(ctx context.Context, req automation.Request) (*automation.Result, error)
	postText  string
	requests  []automation.Request
}

func (m *mockExecutor) PerformAction(ctx context.Context, req automation.Request) (*automation.Result, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.performFn != nil {
		return m.performFn(ctx, req)
	}
	return &automation.Result{Success: true, ResultText: "ok"}, nil
}

func (m *mockExecutor) ExtractPostText(ctx context.Context, controlURL, targetID string) (string, error) {
	return m.postText, nil
}

type mockComposer struct {
	composeFn func(ctx context.Context, postText string) (string, error)
}

func (m *mockComposer) Compose(ctx context.Context, postText string) (string, error) {
	if m.composeFn != nil {
		return m.composeFn(ctx, postText)
	}
	return "Nice post!", nil
}

// --- 上限 / ポリシー ---

type mockQuota struct {
	mu       sync.Mutex
	allowN   int // この件数までは許可する。負の場合は無制限
	checks   int
	recorded int
}

func (m *mockQuota) Check(ctx context.Context, identity *model.Identity, kind model.ActionType, now time.Time) (quota.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks++
	if m.allowN >= 0 && m.recorded >= m.allowN {
		return quota.Result{Allowed: false, Reason: "daily_limit"}, nil
	}
	return quota.Result{Allowed: true}, nil
}

func (m *mockQuota) Record(ctx context.Context, identityID int64, kind model.ActionType, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded++
	return nil
}

type mockPolicy struct {
	mu         sync.Mutex
	denied     map[string]cooldown.Decision
	registered []string
}

func (m *mockPolicy) Evaluate(ctx context.Context, targetID string, kind model.ActionType, identityID int64, now time.Time) (cooldown.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.denied[targetID]; ok {
		return d, nil
	}
	return cooldown.Decision{Allowed: true, Reason: cooldown.ReasonOK}, nil
}

func (m *mockPolicy) Register(ctx context.Context, targetID string, kind model.ActionType, identityID int64, now time.Time) (*model.RegistryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, targetID)
	return &model.RegistryEntry{TargetID: targetID}, nil
}

// --- 乱数 ---

type fixedRand struct {
	n int64
	f float64
}

func (r fixedRand) Int64N(n int64) int64 {
	if r.n >= n {
		return n - 1
	}
	return r.n
}
func (r fixedRand) Float64() float64 { return r.f }

// --- スケジューラ用 ---

type mockRunner struct {
	mu        sync.Mutex
	calls     []int64
	deadlines []time.Time
	err       error
}

func (m *mockRunner) RunTurn(ctx context.Context, identity *model.Identity, deadline time.Time) (TurnStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, identity.ID)
	m.deadlines = append(m.deadlines, deadline)
	return TurnStats{IdentityID: identity.ID, StopReason: StopQueueEmpty}, m.err
}

type mockPlanner struct {
	window schedule.WorkWindow
	plan   *schedule.DayPlan
	err    error
	calls  int
}

func (m *mockPlanner) Window() schedule.WorkWindow { return m.window }

func (m *mockPlanner) Today(ctx context.Context, now time.Time) (*schedule.DayPlan, error) {
	m.calls++
	return m.plan, m.err
}
