// Package rotation はアイデンティティを時間枠ごとに切り替えながらキューを処理するワーカーを提供する。
// 常に1つのアイデンティティだけがブラウザセッションを保持し、ターンは重ならない。
package rotation

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/repository"
	"github.com/hitoshi/senderpool/internal/schedule"
)

// TurnRunner はアイデンティティ1件分のターンを実行する。
type TurnRunner interface {
	RunTurn(ctx context.Context, identity *model.Identity, deadline time.Time) (TurnStats, error)
}

// SlotPlanner は当日の時間枠を計算する。
type SlotPlanner interface {
	Window() schedule.WorkWindow
	Today(ctx context.Context, now time.Time) (*schedule.DayPlan, error)
}

// Scheduler は定期的に現在の時間枠を判定し、該当アイデンティティのターンを実行する。
// ターンはRunOnceの中で同期的に実行されるため、次のティックはターン終了まで待たされる。
type Scheduler struct {
	planner SlotPlanner
	runner  TurnRunner
	queue   repository.QueueRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(planner SlotPlanner, runner TurnRunner, queue repository.QueueRepository, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		planner: planner,
		runner:  runner,
		queue:   queue,
		logger:  logger,
		now:     time.Now,
	}
}

// Recover は前回の停止で running のまま残った項目を skipped にする。
func (s *Scheduler) Recover(ctx context.Context) error {
	n, err := s.queue.SkipRunning(ctx, "停止により実行結果を確認できませんでした", s.now())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Warn("未確認の実行中項目をスキップにしました", slog.Int("count", n))
	}
	return nil
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("ローテーションスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	if err := s.Recover(ctx); err != nil {
		s.logger.Error("実行中項目の復旧に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("スケジューリングパスの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ローテーションスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("スケジューリングパスの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は当日の時間枠を計算し直し、現在時刻を含む枠のアイデンティティのターンを実行する。
// ギャップ・余白・業務時間外では何もしない。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.now()
	window := s.planner.Window()
	if !window.InHours(now) {
		s.logger.Debug("業務時間外のためスキップします")
		return nil
	}

	plan, err := s.planner.Today(ctx, now)
	if err != nil {
		return err
	}

	slot, identity, ok := plan.Slot(window.MinuteOfDay(now))
	if !ok {
		s.logger.Debug("現在時刻に該当する時間枠はありません",
			slog.Int("slot_count", len(plan.Slots)),
		)
		return nil
	}

	deadline := window.At(now, slot.EndMinute)
	stats, err := s.runner.RunTurn(ctx, identity, deadline)
	if err != nil {
		return err
	}

	s.logger.Info("スケジューリングパスが完了しました",
		slog.Int64("identity_id", identity.ID),
		slog.Int("processed", stats.Processed),
		slog.String("stop_reason", stats.StopReason),
		slog.Float64("duration_ms", float64(s.now().Sub(now).Milliseconds())),
	)
	return nil
}
