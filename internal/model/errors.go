package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, identity, campaign, target, system
	Action   string // オペレーター向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeInvalidActionType     = "INVALID_ACTION_TYPE"
	ErrCodeInvalidTarget         = "INVALID_TARGET"
	ErrCodeInvalidQuota          = "INVALID_QUOTA"
	ErrCodeIdentityNotFound      = "IDENTITY_NOT_FOUND"
	ErrCodeIdentityLimit         = "IDENTITY_LIMIT"
	ErrCodeInvalidIdentityStatus = "INVALID_IDENTITY_STATUS"
	ErrCodeNoIdentitiesSelected  = "NO_IDENTITIES_SELECTED"
	ErrCodeListNotFound          = "LIST_NOT_FOUND"
	ErrCodeCampaignNotFound      = "CAMPAIGN_NOT_FOUND"
	ErrCodeInvalidCampaignState  = "INVALID_CAMPAIGN_STATE"
)

// NewInvalidRequestError はリクエスト内容の不備を表すエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewInvalidActionTypeError は未知のアクション種別エラーを生成する。
func NewInvalidActionTypeError(actionType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidActionType,
		Message:  fmt.Sprintf("無効なアクション種別です: %s", actionType),
		Category: "validation",
		Action:   "アクション種別には connect、like、comment のいずれかを指定してください。",
	}
}

// NewInvalidTargetError は正規化できないターゲットURLのエラーを生成する。
func NewInvalidTargetError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTarget,
		Message:  fmt.Sprintf("無効なターゲットURLです: %s", reason),
		Category: "target",
		Action:   "プロフィールURL（https://www.linkedin.com/in/... 形式）を指定してください。",
	}
}

// NewInvalidQuotaError は上限値が不正な場合のエラーを生成する。
func NewInvalidQuotaError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuota,
		Message:  fmt.Sprintf("無効な上限値です: %s", reason),
		Category: "validation",
		Action:   "日次・週次の上限は0以上で、日次は週次以下にしてください。",
	}
}

// NewIdentityNotFoundError はアイデンティティ未検出エラーを生成する。
func NewIdentityNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeIdentityNotFound,
		Message:  fmt.Sprintf("指定されたアイデンティティが見つかりません: %d", id),
		Category: "identity",
		Action:   "アイデンティティIDを確認してください。",
	}
}

// NewIdentityLimitError は登録可能なアイデンティティ数を超えた場合のエラーを生成する。
func NewIdentityLimitError(max int) *APIError {
	return &APIError{
		Code:     ErrCodeIdentityLimit,
		Message:  fmt.Sprintf("アイデンティティ数が上限（%d件）に達しています。", max),
		Category: "identity",
		Action:   "既存のアイデンティティを一時停止して再利用してください。",
	}
}

// NewInvalidIdentityStatusError は不正な状態遷移のエラーを生成する。
func NewInvalidIdentityStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidIdentityStatus,
		Message:  fmt.Sprintf("無効なアイデンティティ状態です: %s", status),
		Category: "identity",
		Action:   "状態には active、paused、credential_expired のいずれかを指定してください。",
	}
}

// NewNoIdentitiesSelectedError はキャンペーンにアイデンティティが選択されていない場合のエラーを生成する。
func NewNoIdentitiesSelectedError() *APIError {
	return &APIError{
		Code:     ErrCodeNoIdentitiesSelected,
		Message:  "アイデンティティが1件も選択されていません。",
		Category: "campaign",
		Action:   "キャンペーンに1件以上のアイデンティティを選択してください。",
	}
}

// NewListNotFoundError はターゲットリスト未検出エラーを生成する。
func NewListNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeListNotFound,
		Message:  fmt.Sprintf("指定されたターゲットリストが見つかりません: %s", id),
		Category: "target",
		Action:   "リストIDを確認してください。",
	}
}

// NewCampaignNotFoundError はキャンペーン未検出エラーを生成する。
func NewCampaignNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeCampaignNotFound,
		Message:  fmt.Sprintf("指定されたキャンペーンが見つかりません: %s", id),
		Category: "campaign",
		Action:   "キャンペーンIDを確認してください。",
	}
}

// NewInvalidCampaignStateError はキャンペーンの現在状態では実行できない操作のエラーを生成する。
func NewInvalidCampaignStateError(current CampaignStatus, op string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCampaignState,
		Message:  fmt.Sprintf("状態 %s のキャンペーンには %s を実行できません。", current, op),
		Category: "campaign",
		Action:   "キャンペーンの状態を確認してください。",
	}
}
