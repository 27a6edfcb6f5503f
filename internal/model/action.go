// Package model はドメインモデルを定義する。
package model

import "fmt"

// ActionType はアイデンティティがターゲットに対して実行するアクション種別を表す。
type ActionType string

const (
	// ActionConnect は接続リクエストの送信。
	ActionConnect ActionType = "connect"
	// ActionLike は最新投稿へのいいね。
	ActionLike ActionType = "like"
	// ActionComment は最新投稿へのコメント。
	ActionComment ActionType = "comment"
)

// AllActionTypes は全アクション種別を固定順で返す。
func AllActionTypes() []ActionType {
	return []ActionType{ActionConnect, ActionLike, ActionComment}
}

// ParseActionType は文字列をActionTypeに変換する。
// 未知の値の場合はエラーを返す。
func ParseActionType(s string) (ActionType, error) {
	switch ActionType(s) {
	case ActionConnect, ActionLike, ActionComment:
		return ActionType(s), nil
	default:
		return "", NewInvalidActionTypeError(s)
	}
}

// Valid はActionTypeが既知の値かを返す。
func (a ActionType) Valid() bool {
	_, err := ParseActionType(string(a))
	return err == nil
}

// String はfmt.Stringerを実装する。
func (a ActionType) String() string {
	return string(a)
}

// mustKnown は未知の種別でpanicする。内部テーブル参照の前提条件チェック用。
func (a ActionType) mustKnown() {
	if !a.Valid() {
		panic(fmt.Sprintf("model: unknown action type %q", string(a)))
	}
}
