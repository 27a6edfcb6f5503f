package model

import "time"

// ActionRecord は特定種別のアクションを最後に実行したアイデンティティと日時。
// IdentityIDが0の場合は未実行を表す。
type ActionRecord struct {
	IdentityID  int64
	PerformedAt time.Time
}

// Done はこの種別が一度でも実行されたかを返す。
func (r ActionRecord) Done() bool {
	return r.IdentityID != 0
}

// RegistryEntry はグローバル接触レジストリの1行（ターゲット1件）を表す。
// CooldownExpiresAt は常に LastActionAt + クールダウン期間 と等しい。
type RegistryEntry struct {
	TargetID             string
	LastActionType       ActionType
	LastActionIdentityID int64
	LastActionAt         time.Time
	CooldownExpiresAt    time.Time

	// 種別ごとの履歴。Record/SetRecord の固定テーブル経由でのみ参照する。
	Connect ActionRecord
	Like    ActionRecord
	Comment ActionRecord

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Record は指定種別の履歴を返す。
func (e *RegistryEntry) Record(a ActionType) ActionRecord {
	a.mustKnown()
	switch a {
	case ActionConnect:
		return e.Connect
	case ActionLike:
		return e.Like
	default:
		return e.Comment
	}
}

// SetRecord は指定種別の履歴のみを上書きする。
func (e *RegistryEntry) SetRecord(a ActionType, r ActionRecord) {
	a.mustKnown()
	switch a {
	case ActionConnect:
		e.Connect = r
	case ActionLike:
		e.Like = r
	default:
		e.Comment = r
	}
}

// InCooldown は now 時点でクールダウン期間中かを返す。
func (e *RegistryEntry) InCooldown(now time.Time) bool {
	return now.Before(e.CooldownExpiresAt)
}

// Remaining は now からクールダウン終了までの残り時間を返す。終了済みなら0。
func (e *RegistryEntry) Remaining(now time.Time) time.Duration {
	if !e.InCooldown(now) {
		return 0
	}
	return e.CooldownExpiresAt.Sub(now)
}
