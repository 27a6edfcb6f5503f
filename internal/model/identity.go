package model

import "time"

// IdentityStatus はアイデンティティ（送信者アカウント）のライフサイクル状態を表す。
type IdentityStatus string

const (
	// IdentityStatusActive はスケジューリング対象の状態。
	IdentityStatusActive IdentityStatus = "active"
	// IdentityStatusPaused はオペレーターにより一時停止された状態。
	IdentityStatusPaused IdentityStatus = "paused"
	// IdentityStatusCredentialExpired は認証情報の期限切れでセッションを張れない状態。
	IdentityStatusCredentialExpired IdentityStatus = "credential_expired"
)

// Quota は1種類のアクションに対する日次・週次の上限値。
type Quota struct {
	Daily  int
	Weekly int
}

// Quotas はアクション種別ごとの上限値。
// 種別から値への対応は For/Set の固定テーブルで行う。
type Quotas struct {
	Connect Quota
	Like    Quota
	Comment Quota
}

// For は指定種別の上限値を返す。
func (q Quotas) For(a ActionType) Quota {
	a.mustKnown()
	switch a {
	case ActionConnect:
		return q.Connect
	case ActionLike:
		return q.Like
	default:
		return q.Comment
	}
}

// Set は指定種別の上限値を設定する。
func (q *Quotas) Set(a ActionType, v Quota) {
	a.mustKnown()
	switch a {
	case ActionConnect:
		q.Connect = v
	case ActionLike:
		q.Like = v
	default:
		q.Comment = v
	}
}

// Identity はアクションを実行する自動化アクター（送信者）を表す。
// 削除はせず、停止のみ行う。
type Identity struct {
	ID             int64
	Name           string
	Email          string
	BrowserProfile string // ブラウザのユーザーデータディレクトリ名
	Status         IdentityStatus
	Quotas         Quotas
	LastActiveAt   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsActive はスケジューリング対象かどうかを返す。
func (i *Identity) IsActive() bool {
	return i.Status == IdentityStatusActive
}

// ValidIdentityStatus は既知の状態値かを返す。
func ValidIdentityStatus(s IdentityStatus) bool {
	switch s {
	case IdentityStatusActive, IdentityStatusPaused, IdentityStatusCredentialExpired:
		return true
	}
	return false
}

// IdentityCounters はアイデンティティの当日アクション数。
type IdentityCounters struct {
	Connects int
	Likes    int
	Comments int
}

// Add は指定種別のカウンタに値を加算する。
func (c *IdentityCounters) Add(a ActionType, n int) {
	a.mustKnown()
	switch a {
	case ActionConnect:
		c.Connects += n
	case ActionLike:
		c.Likes += n
	default:
		c.Comments += n
	}
}
