package rotation

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/schedule"
)

var weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

func testWindow() schedule.WorkWindow {
	return schedule.WorkWindow{StartHour: 9, EndHour: 18, Days: weekdays, Location: time.UTC}
}

// 9:00-11:56 / 12:01-14:57 / 15:02-17:58 の3枠（n=3, gap=5）
func threeSlotPlan() *schedule.DayPlan {
	identities := map[int64]*model.Identity{}
	var candidates []schedule.Candidate
	for _, id := range []int64{1, 2, 3} {
		identity := &model.Identity{ID: id, Status: model.IdentityStatusActive}
		identities[id] = identity
		candidates = append(candidates, schedule.Candidate{Identity: identity, Pending: 10})
	}
	return &schedule.DayPlan{
		WorkDay:    true,
		Slots:      schedule.ComputeSlots(candidates, 9*60, 18*60, 5),
		Identities: identities,
	}
}

func newTestScheduler(planner *mockPlanner, runner *mockRunner, queue *fakeQueue, now time.Time) *Scheduler {
	var buf bytes.Buffer
	s := NewScheduler(planner, runner, queue, newTestLogger(&buf))
	s.now = func() time.Time { return now }
	return s
}

func TestNewScheduler_ReturnsNonNil(t *testing.T) {
	var buf bytes.Buffer
	if s := NewScheduler(&mockPlanner{}, &mockRunner{}, &fakeQueue{}, newTestLogger(&buf)); s == nil {
		t.Fatal("NewScheduler は nil を返してはならない")
	}
}

func TestScheduler_RunOnce_RunsActiveSlotUntilSlotEnd(t *testing.T) {
	tests := []struct {
		name         string
		now          time.Time
		wantIdentity int64
		wantDeadline time.Time
	}{
		{
			name:         "最初の枠",
			now:          time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC),
			wantIdentity: 1,
			wantDeadline: time.Date(2026, 10, 14, 11, 56, 0, 0, time.UTC),
		},
		{
			name:         "2番目の枠の開始直後",
			now:          time.Date(2026, 10, 14, 12, 1, 0, 0, time.UTC),
			wantIdentity: 2,
			wantDeadline: time.Date(2026, 10, 14, 14, 57, 0, 0, time.UTC),
		},
		{
			name:         "最後の枠",
			now:          time.Date(2026, 10, 14, 17, 50, 0, 0, time.UTC),
			wantIdentity: 3,
			wantDeadline: time.Date(2026, 10, 14, 17, 58, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := &mockPlanner{window: testWindow(), plan: threeSlotPlan()}
			runner := &mockRunner{}
			s := newTestScheduler(planner, runner, &fakeQueue{}, tt.now)

			if err := s.RunOnce(context.Background()); err != nil {
				t.Fatalf("RunOnce がエラーを返した: %v", err)
			}
			if len(runner.calls) != 1 || runner.calls[0] != tt.wantIdentity {
				t.Fatalf("ターン実行 = %v, want [%d]", runner.calls, tt.wantIdentity)
			}
			if !runner.deadlines[0].Equal(tt.wantDeadline) {
				t.Errorf("deadline = %v, want %v", runner.deadlines[0], tt.wantDeadline)
			}
		})
	}
}

func TestScheduler_RunOnce_NoTurn(t *testing.T) {
	tests := []struct {
		name        string
		now         time.Time
		wantPlanned bool
	}{
		{name: "枠間のギャップ", now: time.Date(2026, 10, 14, 11, 58, 0, 0, time.UTC), wantPlanned: true},
		{name: "末尾の余白", now: time.Date(2026, 10, 14, 17, 59, 0, 0, time.UTC), wantPlanned: true},
		{name: "業務開始前", now: time.Date(2026, 10, 14, 8, 59, 0, 0, time.UTC), wantPlanned: false},
		{name: "業務終了後", now: time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC), wantPlanned: false},
		{name: "土曜日", now: time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC), wantPlanned: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := &mockPlanner{window: testWindow(), plan: threeSlotPlan()}
			runner := &mockRunner{}
			s := newTestScheduler(planner, runner, &fakeQueue{}, tt.now)

			if err := s.RunOnce(context.Background()); err != nil {
				t.Fatalf("RunOnce がエラーを返した: %v", err)
			}
			if len(runner.calls) != 0 {
				t.Errorf("ターンは実行されるべきではない: %v", runner.calls)
			}
			if (planner.calls > 0) != tt.wantPlanned {
				t.Errorf("枠の計算 = %d 回, want planned=%v", planner.calls, tt.wantPlanned)
			}
		})
	}
}

func TestScheduler_RunOnce_PropagatesErrors(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

	planner := &mockPlanner{window: testWindow(), err: errors.New("db down")}
	s := newTestScheduler(planner, &mockRunner{}, &fakeQueue{}, now)
	if err := s.RunOnce(context.Background()); err == nil {
		t.Error("枠計算のエラーは返されるべき")
	}

	planner = &mockPlanner{window: testWindow(), plan: threeSlotPlan()}
	s = newTestScheduler(planner, &mockRunner{err: errors.New("queue read failed")}, &fakeQueue{}, now)
	if err := s.RunOnce(context.Background()); err == nil {
		t.Error("ターンのエラーは返されるべき")
	}
}

func TestScheduler_Recover_SkipsRunningItems(t *testing.T) {
	items := newItems(1, model.ActionConnect, "t1", "t2")
	items[0].Status = model.QueueStatusRunning
	queue := &fakeQueue{items: items}
	s := newTestScheduler(&mockPlanner{window: testWindow()}, &mockRunner{}, queue, time.Now())

	if err := s.Recover(context.Background()); err != nil {
		t.Fatalf("Recover がエラーを返した: %v", err)
	}
	if queue.status("t1") != model.QueueStatusSkipped {
		t.Errorf("t1 の状態 = %s, want skipped", queue.status("t1"))
	}
	if queue.status("t2") != model.QueueStatusPending {
		t.Errorf("t2 の状態 = %s, want pending", queue.status("t2"))
	}
	if queue.skipReason == "" {
		t.Error("理由が記録されるべき")
	}
}

func TestScheduler_Start_StopsOnCancel(t *testing.T) {
	planner := &mockPlanner{window: testWindow(), plan: threeSlotPlan()}
	s := newTestScheduler(planner, &mockRunner{}, &fakeQueue{}, time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("キャンセル後にスケジューラが停止しなかった")
	}
}
