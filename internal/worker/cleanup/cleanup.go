// Package cleanup はアクティビティログの自動削除ジョブを提供する。
// 保持期間（デフォルト30日）を超過したログを日次バッチで削除する。
// 接触レジストリとキューは削除対象にしない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Purger は指定日時より古いアクティビティを削除するインターフェース。
type Purger interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したアクティビティの自動削除ジョブ。
// 削除対象がない場合もエラーにしない。
type CleanupJob struct {
	purger        Purger
	logger        *slog.Logger
	RetentionDays int // アクティビティの保持日数（デフォルト: 30）
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが0以下の場合はデフォルトの30日を使う。
func NewCleanupJob(purger Purger, retentionDays int, logger *slog.Logger) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &CleanupJob{
		purger:        purger,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run は created_at が RetentionDays 日前より古いアクティビティを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	before := start.AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.purger.DeleteOlderThan(ctx, before)
	if err != nil {
		j.logger.Error("アクティビティクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("アクティビティクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("アクティビティクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return nil
}

// Start は起動時に1回、その後interval間隔でRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
