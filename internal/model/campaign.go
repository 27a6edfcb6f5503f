package model

import "time"

// CampaignStatus はキャンペーンのライフサイクル状態を表す。
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// Terminal は終端状態（completed / cancelled）かを返す。
func (s CampaignStatus) Terminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusCancelled
}

// CampaignCounters はキャンペーンの集計カウンタ。
// Processed = Succeeded + Failed + Skipped が常に成り立つ。
type CampaignCounters struct {
	Total      int
	InCooldown int
	Processed  int
	Succeeded  int
	Failed     int
	Skipped    int
}

// Campaign はターゲットリストに対する1種類のアクションの作業単位。
type Campaign struct {
	ID          string
	Name        string
	ListID      string
	ActionType  ActionType
	IdentityIDs []int64 // 選択順を保持する
	Status      CampaignStatus
	Counters    CampaignCounters
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// CounterDelta はキャンペーンカウンタの増分。
type CounterDelta struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
}

// DeltaFor はキュー項目の終端状態に対応するカウンタ増分を返す。
func DeltaFor(status QueueStatus) CounterDelta {
	switch status {
	case QueueStatusCompleted:
		return CounterDelta{Processed: 1, Succeeded: 1}
	case QueueStatusFailed:
		return CounterDelta{Processed: 1, Failed: 1}
	case QueueStatusSkippedCooldown, QueueStatusSkipped:
		return CounterDelta{Processed: 1, Skipped: 1}
	default:
		return CounterDelta{}
	}
}
