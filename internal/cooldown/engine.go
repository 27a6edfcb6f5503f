package cooldown

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/repository"
)

// Recorder は判定結果を記録するメトリクスのインターフェース。
type Recorder interface {
	RecordDecision(kind model.ActionType, reason string)
}

// Engine はレジストリへの唯一の入口となるクールダウンポリシーエンジン。
type Engine struct {
	store    repository.RegistryRepository
	duration time.Duration
	recorder Recorder
	logger   *slog.Logger
}

// NewEngine はEngineを生成する。recorderはnilでもよい。
func NewEngine(store repository.RegistryRepository, duration time.Duration, recorder Recorder, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		duration: duration,
		recorder: recorder,
		logger:   logger,
	}
}

// Duration はクールダウン期間を返す。
func (e *Engine) Duration() time.Duration {
	return e.duration
}

// Evaluate は identityID が targetID に kind を実行してよいかを判定する。
// エラーは永続化層の障害のみで、その場合呼び出し側は当該操作を中止する。
func (e *Engine) Evaluate(ctx context.Context, targetID string, kind model.ActionType, identityID int64, now time.Time) (Decision, error) {
	entry, err := e.store.FindByTargetID(ctx, targetID)
	if err != nil {
		return Decision{}, fmt.Errorf("クールダウン判定に失敗しました: %w", err)
	}
	d := Decide(entry, kind, identityID, now)
	if e.recorder != nil {
		e.recorder.RecordDecision(kind, string(d.Reason))
	}
	return d, nil
}

// Register は成功したアクションをレジストリに記録する。
// 外部アクションの成功ごとに1回だけ呼ぶ。拒否・失敗したアクションでは呼ばない。
func (e *Engine) Register(ctx context.Context, targetID string, kind model.ActionType, identityID int64, now time.Time) (*model.RegistryEntry, error) {
	entry, err := e.store.Mutate(ctx, targetID, func(current *model.RegistryEntry) *model.RegistryEntry {
		return Apply(current, targetID, kind, identityID, now, e.duration)
	})
	if err != nil {
		return nil, fmt.Errorf("レジストリへの記録に失敗しました: %w", err)
	}

	e.logger.Debug("接触をレジストリに記録しました",
		slog.String("target_id", targetID),
		slog.String("action", kind.String()),
		slog.Int64("identity_id", identityID),
		slog.Time("cooldown_expires_at", entry.CooldownExpiresAt),
	)
	return entry, nil
}

// IsAvailableForRedistribution は候補のいずれかが実行可能な場合にtrueを返す。
func (e *Engine) IsAvailableForRedistribution(entry *model.RegistryEntry, kind model.ActionType, candidates []int64, now time.Time) bool {
	return AvailableFor(entry, kind, candidates, now)
}

// Lookup は複数ターゲットのエントリをまとめて取得する。
func (e *Engine) Lookup(ctx context.Context, targetIDs []string) (map[string]*model.RegistryEntry, error) {
	entries, err := e.store.ListByTargetIDs(ctx, targetIDs)
	if err != nil {
		return nil, fmt.Errorf("レジストリの一括取得に失敗しました: %w", err)
	}
	return entries, nil
}

// FilterAvailable はターゲットを再配分可能なものとそれ以外に分ける。順序は維持する。
func (e *Engine) FilterAvailable(ctx context.Context, targets []model.Target, kind model.ActionType, candidates []int64, now time.Time) (available, excluded []model.Target, err error) {
	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	entries, err := e.Lookup(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	for _, t := range targets {
		if e.IsAvailableForRedistribution(entries[t.ID], kind, candidates, now) {
			available = append(available, t)
		} else {
			excluded = append(excluded, t)
		}
	}
	return available, excluded, nil
}
