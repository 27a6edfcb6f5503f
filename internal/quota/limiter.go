// Package quota はアイデンティティごとの日次・週次アクション上限を管理する。
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/repository"
	"github.com/hitoshi/senderpool/internal/schedule"
)

// Result は上限チェックの結果。
type Result struct {
	Allowed     bool
	DailyUsed   int
	DailyLimit  int
	WeeklyUsed  int
	WeeklyLimit int
	RampUp      bool
	Reason      string
}

// RampUp は新規アイデンティティの上限縮小設定。
type RampUp struct {
	Weeks      int
	Percentage int
}

// Limiter は日次カウンタに基づいて上限を判定する。
type Limiter struct {
	counters repository.CounterRepository
	window   schedule.WorkWindow
	rampUp   RampUp
}

// NewLimiter はLimiterを生成する。
func NewLimiter(counters repository.CounterRepository, window schedule.WorkWindow, rampUp RampUp) *Limiter {
	return &Limiter{counters: counters, window: window, rampUp: rampUp}
}

// Limits は ramp-up を反映した日次・週次の上限を返す。
func (l *Limiter) Limits(identity *model.Identity, kind model.ActionType, now time.Time) (daily, weekly int, rampUp bool) {
	q := identity.Quotas.For(kind)
	daily, weekly = q.Daily, q.Weekly
	if l.inRampUp(identity, now) {
		daily = daily * l.rampUp.Percentage / 100
		weekly = weekly * l.rampUp.Percentage / 100
		return daily, weekly, true
	}
	return daily, weekly, false
}

func (l *Limiter) inRampUp(identity *model.Identity, now time.Time) bool {
	if l.rampUp.Weeks <= 0 || identity.CreatedAt.IsZero() {
		return false
	}
	cutoff := now.AddDate(0, 0, -7*l.rampUp.Weeks)
	return identity.CreatedAt.After(cutoff)
}

// Check は identity が now 時点で kind をもう1回実行できるかを判定する。
// 週は業務タイムゾーンの月曜始まり。
func (l *Limiter) Check(ctx context.Context, identity *model.Identity, kind model.ActionType, now time.Time) (Result, error) {
	daily, weekly, rampUp := l.Limits(identity, kind, now)
	today := l.window.Local(now)

	dailyUsed, err := l.counters.Sum(ctx, identity.ID, kind, today, today)
	if err != nil {
		return Result{}, fmt.Errorf("日次使用量の取得に失敗しました: %w", err)
	}
	weeklyUsed, err := l.counters.Sum(ctx, identity.ID, kind, l.window.WeekStart(now), today)
	if err != nil {
		return Result{}, fmt.Errorf("週次使用量の取得に失敗しました: %w", err)
	}

	res := Result{
		Allowed:     true,
		DailyUsed:   dailyUsed,
		DailyLimit:  daily,
		WeeklyUsed:  weeklyUsed,
		WeeklyLimit: weekly,
		RampUp:      rampUp,
	}
	switch {
	case dailyUsed >= daily:
		res.Allowed = false
		res.Reason = fmt.Sprintf("daily %s limit reached (%d/%d)", kind, dailyUsed, daily)
	case weeklyUsed >= weekly:
		res.Allowed = false
		res.Reason = fmt.Sprintf("weekly %s limit reached (%d/%d)", kind, weeklyUsed, weekly)
	case rampUp:
		res.Reason = fmt.Sprintf("ramp-up active (%d%% of full limits)", l.rampUp.Percentage)
	}
	return res, nil
}

// Record は成功したアクションを当日のカウンタに加算する。
func (l *Limiter) Record(ctx context.Context, identityID int64, kind model.ActionType, now time.Time) error {
	if err := l.counters.Increment(ctx, identityID, kind, l.window.Local(now)); err != nil {
		return fmt.Errorf("アクション数の記録に失敗しました: %w", err)
	}
	return nil
}

// TodayCounters は当日の種別ごとのアクション数を返す。
func (l *Limiter) TodayCounters(ctx context.Context, identityID int64, now time.Time) (model.IdentityCounters, error) {
	c, err := l.counters.ForDay(ctx, identityID, l.window.Local(now))
	if err != nil {
		return c, fmt.Errorf("当日のアクション数の取得に失敗しました: %w", err)
	}
	return c, nil
}

// WeeklyUsed は今週（月曜から now の日まで）のアクション数を返す。
func (l *Limiter) WeeklyUsed(ctx context.Context, identityID int64, kind model.ActionType, now time.Time) (int, error) {
	n, err := l.counters.Sum(ctx, identityID, kind, l.window.WeekStart(now), l.window.Local(now))
	if err != nil {
		return 0, fmt.Errorf("週次使用量の取得に失敗しました: %w", err)
	}
	return n, nil
}
