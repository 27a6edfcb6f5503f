package model

import "time"

// QueueStatus はアクションキュー項目の状態を表す。
type QueueStatus string

const (
	QueueStatusPending         QueueStatus = "pending"
	QueueStatusScheduled       QueueStatus = "scheduled"
	QueueStatusRunning         QueueStatus = "running"
	QueueStatusCompleted       QueueStatus = "completed"
	QueueStatusFailed          QueueStatus = "failed"
	QueueStatusSkippedCooldown QueueStatus = "skipped_cooldown"
	// QueueStatusSkipped はキャンセルや未確認のまま中断された項目。
	QueueStatusSkipped QueueStatus = "skipped"
)

// Terminal は終端状態かを返す。終端状態の項目は変更しない。
func (s QueueStatus) Terminal() bool {
	switch s {
	case QueueStatusCompleted, QueueStatusFailed, QueueStatusSkippedCooldown, QueueStatusSkipped:
		return true
	}
	return false
}

// QueueItem は (キャンペーン, アイデンティティ, ターゲット) ごとの作業項目。
type QueueItem struct {
	ID          string
	Seq         int64 // エンキュー順。FIFO処理に使う
	CampaignID  string
	IdentityID  int64
	TargetID    string
	TargetName  string
	ActionType  ActionType
	Status      QueueStatus
	Payload     string // コメント本文など
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// ActivityEntry はキュー項目の終端遷移ごとに記録するアクティビティログ。
type ActivityEntry struct {
	ID           string
	CampaignID   string
	IdentityID   int64
	IdentityName string
	TargetID     string
	TargetName   string
	ActionType   ActionType
	Status       QueueStatus
	Details      string
	CreatedAt    time.Time
}

// CommentTemplate はコメント候補として使う定型文。
type CommentTemplate struct {
	ID         string
	Text       string
	Category   string
	Active     bool
	UsageCount int
}
