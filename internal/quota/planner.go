package quota

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/senderpool/internal/model"
)

// Rand は配分に使う乱数源。*math/rand/v2.Rand が満たす。
type Rand interface {
	IntN(n int) int
	Perm(n int) []int
}

// DistributeBudget は total を buckets 個へおおむね均等かつランダムに分割する。
// 合計は常に total に一致し、各要素は0以上。
func DistributeBudget(total, buckets int, rng Rand) []int {
	if buckets <= 0 {
		return nil
	}
	if total < 0 {
		total = 0
	}
	if buckets == 1 {
		return []int{total}
	}

	base := total / buckets
	remainder := total % buckets
	dist := make([]int, buckets)
	for i := range dist {
		dist[i] = base
	}
	for _, i := range rng.Perm(buckets)[:remainder] {
		dist[i]++
	}

	// 日ごとの量が揃いすぎないよう、ランダムな2日間で少量を移す
	for range buckets {
		i := rng.IntN(buckets)
		j := rng.IntN(buckets)
		if i != j && dist[i] > 1 {
			shift := 1 + rng.IntN(max(1, dist[i]/3))
			dist[i] -= shift
			dist[j] += shift
		}
	}
	return dist
}

// DayBudget は1日分の計画値。
type DayBudget struct {
	Date   time.Time
	Budget int
}

// Planner は週次上限の残りを今週の残り業務日に配分する。
type Planner struct {
	limiter *Limiter
	rng     Rand
}

// lockedRand は複数のリクエストから使われる乱数源を直列化する。
type lockedRand struct {
	mu  sync.Mutex
	rng Rand
}

func (r *lockedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

func (r *lockedRand) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Perm(n)
}

// NewPlanner はPlannerを生成する。PlanWeekは複数のgoroutineから呼び出せる。
func NewPlanner(limiter *Limiter, rng Rand) *Planner {
	return &Planner{limiter: limiter, rng: &lockedRand{rng: rng}}
}

// PlanWeek は now の日を含む残りの業務日ごとの計画値を返す。計画は保存しない。
func (p *Planner) PlanWeek(ctx context.Context, identity *model.Identity, kind model.ActionType, now time.Time) ([]DayBudget, error) {
	_, weekly, _ := p.limiter.Limits(identity, kind, now)
	used, err := p.limiter.WeeklyUsed(ctx, identity.ID, kind, now)
	if err != nil {
		return nil, err
	}

	w := p.limiter.window
	var days []time.Time
	for d := w.Local(now); ; d = d.AddDate(0, 0, 1) {
		if w.IsWorkDay(d) {
			days = append(days, w.At(d, 0))
		}
		if d.Weekday() == time.Sunday {
			break
		}
	}
	if len(days) == 0 {
		return nil, nil
	}

	amounts := DistributeBudget(max(0, weekly-used), len(days), p.rng)
	plan := make([]DayBudget, len(days))
	for i, d := range days {
		plan[i] = DayBudget{Date: d, Budget: amounts[i]}
	}
	return plan, nil
}

// TodayBudget は当日の計画値を返す。業務日でない場合は0。
func (p *Planner) TodayBudget(ctx context.Context, identity *model.Identity, kind model.ActionType, now time.Time) (int, error) {
	plan, err := p.PlanWeek(ctx, identity, kind, now)
	if err != nil {
		return 0, err
	}
	today := p.limiter.window.At(now, 0)
	for _, d := range plan {
		if d.Date.Equal(today) {
			return d.Budget, nil
		}
	}
	return 0, nil
}
