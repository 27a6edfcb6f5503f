package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/repository"
)

// DayPlan はある業務日の枠の計算結果。
type DayPlan struct {
	WorkDay    bool
	Slots      []TimeSlot
	Identities map[int64]*model.Identity
	Pending    map[int64]int
}

// Slot は minute を含む枠とそのアイデンティティを返す。
func (p *DayPlan) Slot(minute int) (TimeSlot, *model.Identity, bool) {
	s, ok := ActiveSlot(p.Slots, minute)
	if !ok {
		return TimeSlot{}, nil, false
	}
	identity, ok := p.Identities[s.IdentityID]
	return s, identity, ok
}

// Planner は現在のアイデンティティと処理待ち件数から当日の枠を計算する。
type Planner struct {
	identities repository.IdentityRepository
	queue      repository.QueueRepository
	window     WorkWindow
	gap        int
}

// NewPlanner はPlannerを生成する。gapはアイデンティティ間の待ち時間（分）。
func NewPlanner(identities repository.IdentityRepository, queue repository.QueueRepository, window WorkWindow, gap int) *Planner {
	return &Planner{identities: identities, queue: queue, window: window, gap: gap}
}

// Window は業務時間枠の設定を返す。
func (p *Planner) Window() WorkWindow {
	return p.window
}

// Today は now の業務日の枠を計算する。業務日でなければ枠は空。
func (p *Planner) Today(ctx context.Context, now time.Time) (*DayPlan, error) {
	plan := &DayPlan{WorkDay: p.window.IsWorkDay(now)}
	if !plan.WorkDay {
		return plan, nil
	}

	identities, err := p.identities.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("アイデンティティ一覧の取得に失敗しました: %w", err)
	}
	pending, err := p.queue.CountPendingByIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("処理待ち件数の取得に失敗しました: %w", err)
	}

	plan.Identities = make(map[int64]*model.Identity, len(identities))
	plan.Pending = pending
	candidates := make([]Candidate, 0, len(identities))
	for _, identity := range identities {
		plan.Identities[identity.ID] = identity
		candidates = append(candidates, Candidate{Identity: identity, Pending: pending[identity.ID]})
	}

	plan.Slots = ComputeSlots(candidates, p.window.StartMinute(), p.window.EndMinute(), p.gap)
	return plan, nil
}
