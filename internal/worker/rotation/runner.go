package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/senderpool/internal/automation"
	"github.com/hitoshi/senderpool/internal/config"
	"github.com/hitoshi/senderpool/internal/cooldown"
	"github.com/hitoshi/senderpool/internal/metrics"
	"github.com/hitoshi/senderpool/internal/model"
	"github.com/hitoshi/senderpool/internal/quota"
	"github.com/hitoshi/senderpool/internal/repository"
	"github.com/hitoshi/senderpool/internal/session"
)

// SessionProvider はアイデンティティのブラウザセッションを払い出す。
type SessionProvider interface {
	Acquire(ctx context.Context, identity *model.Identity) (*session.Lease, error)
}

// Executor は実行レイヤーへのアクション依頼インターフェース。
type Executor interface {
	PerformAction(ctx context.Context, req automation.Request) (*automation.Result, error)
	ExtractPostText(ctx context.Context, controlURL, targetID string) (string, error)
}

// Composer はコメント本文を組み立てる。
type Composer interface {
	Compose(ctx context.Context, postText string) (string, error)
}

// QuotaGuard はアクション数の上限判定と記録を行う。
type QuotaGuard interface {
	Check(ctx context.Context, identity *model.Identity, kind model.ActionType, now time.Time) (quota.Result, error)
	Record(ctx context.Context, identityID int64, kind model.ActionType, now time.Time) error
}

// Policy はクールダウン判定とレジストリ登録を行う。
type Policy interface {
	Evaluate(ctx context.Context, targetID string, kind model.ActionType, identityID int64, now time.Time) (cooldown.Decision, error)
	Register(ctx context.Context, targetID string, kind model.ActionType, identityID int64, now time.Time) (*model.RegistryEntry, error)
}

// Rand はアクション間の待ち時間に使う乱数源。
type Rand interface {
	Int64N(n int64) int64
	Float64() float64
}

// ターンの終了理由
const (
	StopSlotEnd       = "slot_end"
	StopQueueEmpty    = "queue_empty"
	StopQuota         = "quota_exhausted"
	StopIdentity      = "identity_inactive"
	StopCancelled     = "cancelled"
	StopSessionFailed = "session_failed"
)

const (
	// extraPauseChance は通常の待ち時間に加えて長めの休憩を挟む確率。
	extraPauseChance = 0.2
	extraPauseMin    = 60 * time.Second
	extraPauseMax    = 180 * time.Second
)

// TurnStats は1ターンの処理結果。
type TurnStats struct {
	IdentityID int64
	Processed  int
	Succeeded  int
	Failed     int
	Skipped    int
	StopReason string
}

// Runner はアイデンティティ1件分のターンを実行する。
type Runner struct {
	identities    repository.IdentityRepository
	queue         repository.QueueRepository
	campaigns     repository.CampaignRepository
	sessions      SessionProvider
	executor      Executor
	composer      Composer
	quota         QuotaGuard
	policy        Policy
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	delays        func(kind model.ActionType) config.DelayRange
	actionTimeout time.Duration

	rng   Rand
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// RunnerDeps はRunnerの依存をまとめたもの。
type RunnerDeps struct {
	Identities    repository.IdentityRepository
	Queue         repository.QueueRepository
	Campaigns     repository.CampaignRepository
	Sessions      SessionProvider
	Executor      Executor
	Composer      Composer
	Quota         QuotaGuard
	Policy        Policy
	Metrics       metrics.MetricsCollector
	Logger        *slog.Logger
	Delays        func(kind model.ActionType) config.DelayRange
	ActionTimeout time.Duration
	Rand          Rand
}

// NewRunner はRunnerを生成する。
func NewRunner(deps RunnerDeps) *Runner {
	timeout := deps.ActionTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Runner{
		identities:    deps.Identities,
		queue:         deps.Queue,
		campaigns:     deps.Campaigns,
		sessions:      deps.Sessions,
		executor:      deps.Executor,
		composer:      deps.Composer,
		quota:         deps.Quota,
		policy:        deps.Policy,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		delays:        deps.Delays,
		actionTimeout: timeout,
		rng:           deps.Rand,
		now:           time.Now,
		sleep:         sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RunTurn はdeadlineまでidentityのキューをFIFOで処理する。
// キューが空になるか、上限に達するか、deadlineを過ぎた時点でターンを終える。
// 実行中のアクションは中断しない。永続化エラーはターンを中断してエラーを返す。
func (r *Runner) RunTurn(ctx context.Context, identity *model.Identity, deadline time.Time) (TurnStats, error) {
	stats := TurnStats{IdentityID: identity.ID}
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordTurn(stats.Processed)
		}
	}()

	if !r.now().Before(deadline) {
		stats.StopReason = StopSlotEnd
		return stats, nil
	}

	// 実行できる項目がない場合はブラウザを起動しない
	current, item, stop, err := r.next(ctx, identity.ID)
	if err != nil {
		return stats, err
	}
	if stop != "" {
		stats.StopReason = stop
		return stats, nil
	}

	lease, err := r.sessions.Acquire(ctx, identity)
	if err != nil {
		stats.StopReason = StopSessionFailed
		if ctx.Err() != nil {
			stats.StopReason = StopCancelled
			return stats, nil
		}
		r.failOpen(ctx, identity.ID, err.Error())
		return stats, err
	}
	defer func() {
		if err := lease.Release(); err != nil {
			r.logger.Warn("ブラウザセッションの終了に失敗しました",
				slog.Int64("identity_id", identity.ID),
				slog.String("error", err.Error()),
			)
		}
	}()

	r.logger.Info("ターンを開始します",
		slog.Int64("identity_id", identity.ID),
		slog.Time("deadline", deadline),
	)

	for {
		if item == nil {
			if ctx.Err() != nil {
				stats.StopReason = StopCancelled
				break
			}
			if !r.now().Before(deadline) {
				stats.StopReason = StopSlotEnd
				break
			}
			current, item, stop, err = r.next(ctx, identity.ID)
			if err != nil {
				return stats, err
			}
			if stop != "" {
				stats.StopReason = stop
				break
			}
		}

		done := item
		item = nil
		status, dispatched, err := r.process(ctx, current, lease, done)
		if err != nil {
			if ctx.Err() != nil {
				stats.StopReason = StopCancelled
				break
			}
			return stats, err
		}
		stats.add(status)

		if status == model.QueueStatusFailed && done.Error == automation.ErrorCredentialExpired {
			r.expireIdentity(ctx, current)
			stats.StopReason = StopIdentity
			break
		}

		if dispatched {
			if err := r.pause(ctx, done.ActionType, deadline); err != nil {
				stats.StopReason = StopCancelled
				break
			}
		}
	}

	r.logger.Info("ターンを終了しました",
		slog.Int64("identity_id", identity.ID),
		slog.Int("processed", stats.Processed),
		slog.Int("succeeded", stats.Succeeded),
		slog.Int("failed", stats.Failed),
		slog.Int("skipped", stats.Skipped),
		slog.String("stop_reason", stats.StopReason),
	)
	return stats, nil
}

// next はidentityが次に実行できるキュー項目を返す。
// 実行できない場合は終了理由を返す。
func (r *Runner) next(ctx context.Context, identityID int64) (*model.Identity, *model.QueueItem, string, error) {
	current, err := r.identities.FindByID(ctx, identityID)
	if err != nil {
		return nil, nil, "", err
	}
	if current == nil || !current.IsActive() {
		if current != nil && current.Status == model.IdentityStatusCredentialExpired {
			r.failOpen(ctx, identityID, "認証情報が失効しています")
		}
		return nil, nil, StopIdentity, nil
	}

	item, err := r.queue.NextPending(ctx, identityID)
	if err != nil {
		return nil, nil, "", err
	}
	if item == nil {
		return current, nil, StopQueueEmpty, nil
	}

	q, err := r.quota.Check(ctx, current, item.ActionType, r.now())
	if err != nil {
		return nil, nil, "", err
	}
	if !q.Allowed {
		if r.metrics != nil {
			r.metrics.RecordQuotaExhausted(item.ActionType)
		}
		r.logger.Info("アクション上限に達したためターンを終了します",
			slog.Int64("identity_id", identityID),
			slog.String("action", item.ActionType.String()),
			slog.String("reason", q.Reason),
		)
		return current, nil, StopQuota, nil
	}
	return current, item, "", nil
}

// process は1件のキュー項目を処理し、終端状態と実行レイヤーを呼んだかどうかを返す。
// 項目が他の操作で状態を変えていた場合は空の状態を返す。
func (r *Runner) process(ctx context.Context, identity *model.Identity, lease *session.Lease, item *model.QueueItem) (model.QueueStatus, bool, error) {
	now := r.now()

	decision, err := r.policy.Evaluate(ctx, item.TargetID, item.ActionType, identity.ID, now)
	if err != nil {
		return "", false, err
	}
	if !decision.Allowed {
		item.Error = denialDetail(decision)
		return model.QueueStatusSkippedCooldown, false, r.finish(ctx, identity, item, model.QueueStatusSkippedCooldown, item.Error)
	}

	ok, err := r.queue.MarkRunning(ctx, item.ID, now)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	item.Status = model.QueueStatusRunning
	item.StartedAt = &now

	if item.ActionType == model.ActionComment && item.Payload == "" {
		payload, err := r.composeComment(ctx, lease, item)
		if err != nil {
			item.Error = fmt.Sprintf("コメントの作成に失敗しました: %v", err)
			return model.QueueStatusFailed, false, r.finish(ctx, identity, item, model.QueueStatusFailed, item.Error)
		}
		item.Payload = payload
	}

	actx, cancel := context.WithTimeout(ctx, r.actionTimeout)
	start := r.now()
	res, err := r.executor.PerformAction(actx, automation.Request{
		IdentityID:     identity.ID,
		IdentityName:   identity.Name,
		BrowserProfile: identity.BrowserProfile,
		ControlURL:     lease.ControlURL(),
		TargetID:       item.TargetID,
		Action:         item.ActionType,
		Payload:        item.Payload,
	})
	timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
	cancel()
	if r.metrics != nil {
		r.metrics.RecordActionLatency(item.ActionType, r.now().Sub(start))
	}

	// 停止中に中断された項目は running のまま残し、起動時の復旧で skipped にする
	if ctx.Err() != nil {
		return "", true, ctx.Err()
	}

	switch {
	case err != nil:
		item.Error = err.Error()
		if timedOut {
			item.Error = fmt.Sprintf("アクションが %s 以内に完了しませんでした", r.actionTimeout)
		}
		return model.QueueStatusFailed, true, r.finish(ctx, identity, item, model.QueueStatusFailed, item.Error)
	case !res.Success:
		item.Error = res.Error
		return model.QueueStatusFailed, true, r.finish(ctx, identity, item, model.QueueStatusFailed, item.Error)
	}

	done := r.now()
	if _, err := r.policy.Register(ctx, item.TargetID, item.ActionType, identity.ID, done); err != nil {
		return "", true, err
	}
	if err := r.quota.Record(ctx, identity.ID, item.ActionType, done); err != nil {
		r.logger.Error("アクション数の記録に失敗しました",
			slog.Int64("identity_id", identity.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := r.identities.TouchLastActive(ctx, identity.ID, done); err != nil {
		r.logger.Warn("最終アクティブ日時の更新に失敗しました",
			slog.Int64("identity_id", identity.ID),
			slog.String("error", err.Error()),
		)
	}
	return model.QueueStatusCompleted, true, r.finish(ctx, identity, item, model.QueueStatusCompleted, res.ResultText)
}

func (r *Runner) composeComment(ctx context.Context, lease *session.Lease, item *model.QueueItem) (string, error) {
	postText, err := r.executor.ExtractPostText(ctx, lease.ControlURL(), item.TargetID)
	if err != nil {
		postText = ""
	}
	return r.composer.Compose(ctx, postText)
}

// finish は項目を終端状態にしてアクティビティを記録し、キャンペーンの完了を確認する。
func (r *Runner) finish(ctx context.Context, identity *model.Identity, item *model.QueueItem, status model.QueueStatus, details string) error {
	at := r.now()
	item.Status = status
	item.CompletedAt = &at

	entry := &model.ActivityEntry{
		CampaignID:   item.CampaignID,
		IdentityID:   identity.ID,
		IdentityName: identity.Name,
		TargetID:     item.TargetID,
		TargetName:   item.TargetName,
		ActionType:   item.ActionType,
		Status:       status,
		Details:      details,
		CreatedAt:    at,
	}
	if err := r.queue.Finish(ctx, item, entry); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.RecordAction(item.ActionType, status)
	}

	if _, err := r.campaigns.CompleteIfDrained(ctx, item.CampaignID, at); err != nil {
		return err
	}
	return nil
}

func (r *Runner) failOpen(ctx context.Context, identityID int64, reason string) {
	n, err := r.queue.FailOpenForIdentity(ctx, identityID, reason, r.now())
	if err != nil {
		r.logger.Error("未着手項目の失敗処理に失敗しました",
			slog.Int64("identity_id", identityID),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.Warn("アイデンティティの未着手項目を失敗にしました",
		slog.Int64("identity_id", identityID),
		slog.Int("count", n),
		slog.String("reason", reason),
	)
}

func (r *Runner) expireIdentity(ctx context.Context, identity *model.Identity) {
	if err := r.identities.UpdateStatus(ctx, identity.ID, model.IdentityStatusCredentialExpired); err != nil {
		r.logger.Error("アイデンティティの状態更新に失敗しました",
			slog.Int64("identity_id", identity.ID),
			slog.String("error", err.Error()),
		)
	}
	r.failOpen(ctx, identity.ID, "認証情報が失効しています")
}

// pause はアクション種別ごとの範囲でランダムに待つ。deadlineを越えては待たない。
func (r *Runner) pause(ctx context.Context, kind model.ActionType, deadline time.Time) error {
	d := r.delay(kind)
	if remaining := deadline.Sub(r.now()); d > remaining {
		d = remaining
	}
	return r.sleep(ctx, d)
}

func (r *Runner) delay(kind model.ActionType) time.Duration {
	if r.delays == nil || r.rng == nil {
		return 0
	}
	rng := r.delays(kind)
	d := rng.Min
	if span := rng.Max - rng.Min; span > 0 {
		d += time.Duration(r.rng.Int64N(int64(span) + 1))
	}
	if r.rng.Float64() < extraPauseChance {
		d += extraPauseMin + time.Duration(r.rng.Int64N(int64(extraPauseMax-extraPauseMin)+1))
	}
	return d
}

func (s *TurnStats) add(status model.QueueStatus) {
	if status == "" {
		return
	}
	s.Processed++
	switch status {
	case model.QueueStatusCompleted:
		s.Succeeded++
	case model.QueueStatusFailed:
		s.Failed++
	default:
		s.Skipped++
	}
}

func denialDetail(d cooldown.Decision) string {
	if d.Reason == cooldown.ReasonCooldownActive {
		return fmt.Sprintf("%s (identity %d, %s まで)", d.Reason, d.BlockingIdentity, d.BlockedUntil.Format(time.RFC3339))
	}
	return string(d.Reason)
}
