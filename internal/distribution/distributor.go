// Package distribution はターゲットをアイデンティティ間で重複なく配分する。
package distribution

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/senderpool/internal/model"
)

// AvailabilityFilter はクールダウン状態によりターゲットを選別するインターフェース。
type AvailabilityFilter interface {
	FilterAvailable(ctx context.Context, targets []model.Target, kind model.ActionType, candidates []int64, now time.Time) (available, excluded []model.Target, err error)
}

// Result は配分結果。
type Result struct {
	// Assignments はアイデンティティIDごとの割り当て。選択された全アイデンティティのキーを持つ。
	Assignments map[int64][]model.Target
	// Order は選択順のアイデンティティID。
	Order []int64
	// Excluded はクールダウン中として除外したターゲット。
	Excluded []model.Target
	// Available は除外後に配分したターゲット数。
	Available int
}

// Distributor はリード配分を行う。
type Distributor struct {
	filter  AvailabilityFilter
	shuffle func(n int, swap func(i, j int))
	now     func() time.Time
	logger  *slog.Logger
}

// Option はDistributorのオプション。
type Option func(*Distributor)

// WithShuffle はシャッフル関数を差し替える。テストで順序を固定する場合に使う。
func WithShuffle(fn func(n int, swap func(i, j int))) Option {
	return func(d *Distributor) { d.shuffle = fn }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(fn func() time.Time) Option {
	return func(d *Distributor) { d.now = fn }
}

// NewDistributor はDistributorを生成する。
func NewDistributor(filter AvailabilityFilter, logger *slog.Logger, opts ...Option) *Distributor {
	d := &Distributor{
		filter:  filter,
		shuffle: rand.Shuffle,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Distribute はクールダウン中のターゲットを除外し、残りをシャッフルして
// identityIDs の選択順にチャンク分割する。
// 再配分可能かは選択された全アイデンティティを候補として判定する。
func (d *Distributor) Distribute(ctx context.Context, targets []model.Target, kind model.ActionType, identityIDs []int64) (*Result, error) {
	if len(identityIDs) == 0 {
		return nil, model.NewNoIdentitiesSelectedError()
	}

	available, excluded, err := d.filter.FilterAvailable(ctx, targets, kind, identityIDs, d.now())
	if err != nil {
		return nil, fmt.Errorf("配分対象の選別に失敗しました: %w", err)
	}

	pool := make([]model.Target, len(available))
	copy(pool, available)
	d.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	chunks := Partition(pool, len(identityIDs))
	result := &Result{
		Assignments: make(map[int64][]model.Target, len(identityIDs)),
		Order:       append([]int64(nil), identityIDs...),
		Excluded:    excluded,
		Available:   len(pool),
	}
	for i, id := range identityIDs {
		result.Assignments[id] = chunks[i]
	}

	d.logger.Info("ターゲットを分配しました",
		slog.String("action", kind.String()),
		slog.Int("targets", len(targets)),
		slog.Int("available", len(pool)),
		slog.Int("excluded", len(excluded)),
		slog.Int("identities", len(identityIDs)),
	)
	return result, nil
}

// Partition はpoolをn個に分割する。先頭からn-1個は floor(len/n) 件ずつ、最後は残り全部を受け取る。
// 戻り値は常にn要素で、空のチャンクは空スライスになる。
func Partition(pool []model.Target, n int) [][]model.Target {
	if n <= 0 {
		return nil
	}
	chunk := len(pool) / n
	out := make([][]model.Target, n)
	start := 0
	for i := 0; i < n; i++ {
		end := start + chunk
		if i == n-1 {
			end = len(pool)
		}
		out[i] = append([]model.Target{}, pool[start:end]...)
		start = end
	}
	return out
}

// QueueItems は配分結果からpendingのキュー項目を生成する。
// 項目はアイデンティティの選択順、割り当て順に並ぶ。
func (r *Result) QueueItems(campaignID string, kind model.ActionType, now time.Time) []*model.QueueItem {
	var items []*model.QueueItem
	for _, identityID := range r.Order {
		for _, t := range r.Assignments[identityID] {
			items = append(items, &model.QueueItem{
				ID:         uuid.NewString(),
				CampaignID: campaignID,
				IdentityID: identityID,
				TargetID:   t.ID,
				TargetName: t.Name,
				ActionType: kind,
				Status:     model.QueueStatusPending,
				CreatedAt:  now,
			})
		}
	}
	return items
}
