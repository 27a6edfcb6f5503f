// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/senderpool/internal/model"
)

// IdentityRepository はアイデンティティ（送信者）の永続化インターフェース。
// アイデンティティは削除せず、状態の変更のみ行う。
type IdentityRepository interface {
	// Create はアイデンティティを作成し、採番したIDをidentity.IDに設定する。
	Create(ctx context.Context, identity *model.Identity) error

	// FindByID は指定IDのアイデンティティを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Identity, error)

	// List は全アイデンティティをID昇順で返す。
	List(ctx context.Context) ([]*model.Identity, error)

	// Count は登録済みアイデンティティ数を返す。
	Count(ctx context.Context) (int, error)

	// UpdateStatus は状態を更新する。
	UpdateStatus(ctx context.Context, id int64, status model.IdentityStatus) error

	// UpdateQuotas はアクション種別ごとの上限値を更新する。
	UpdateQuotas(ctx context.Context, id int64, quotas model.Quotas) error

	// TouchLastActive は最終アクション日時を更新する。
	TouchLastActive(ctx context.Context, id int64, at time.Time) error
}

// RegistryRepository はグローバル接触レジストリの永続化インターフェース。
// 読み取りと更新はクールダウンエンジンからのみ行う。
type RegistryRepository interface {
	// FindByTargetID はターゲットのエントリを取得する。見つからない場合はnilを返す。
	FindByTargetID(ctx context.Context, targetID string) (*model.RegistryEntry, error)

	// ListByTargetIDs は複数ターゲットのエントリをまとめて取得する。
	// エントリが存在しないターゲットは結果のmapに含まれない。
	ListByTargetIDs(ctx context.Context, targetIDs []string) (map[string]*model.RegistryEntry, error)

	// Mutate はターゲットの行をロックしたうえで fn を適用し、結果をUPSERTする。
	// 読み取りから書き込みまでを1トランザクションで行う。
	// fn には既存エントリ（存在しない場合はnil）が渡される。fnがnilを返した場合は書き込まない。
	Mutate(ctx context.Context, targetID string, fn func(current *model.RegistryEntry) *model.RegistryEntry) (*model.RegistryEntry, error)
}

// TargetRepository はターゲットとターゲットリストの永続化インターフェース。
type TargetRepository interface {
	// UpsertTargets はターゲットを冪等に登録する。既存ターゲットの表示情報は上書きする。
	UpsertTargets(ctx context.Context, targets []model.Target) error

	// ListTargets は登録済みターゲットをID順で返す。
	ListTargets(ctx context.Context, limit int) ([]model.Target, error)

	// CreateList はリストとメンバーを同一トランザクションで作成する。
	CreateList(ctx context.Context, list *model.TargetList, targetIDs []string) error

	// FindList は指定IDのリストを取得する。見つからない場合はnilを返す。
	FindList(ctx context.Context, id string) (*model.TargetList, error)

	// ListLists は全リストを作成日時の降順で返す。
	ListLists(ctx context.Context) ([]*model.TargetList, error)

	// ListMembers はリストのターゲットを登録順で返す。
	ListMembers(ctx context.Context, listID string) ([]model.Target, error)
}

// CampaignRepository はキャンペーンの永続化インターフェース。
type CampaignRepository interface {
	// Create はdraft状態のキャンペーンを作成する。
	Create(ctx context.Context, campaign *model.Campaign) error

	// FindByID は指定IDのキャンペーンを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Campaign, error)

	// List は全キャンペーンを作成日時の降順で返す。
	List(ctx context.Context) ([]*model.Campaign, error)

	// Launch は配分結果のキュー項目を登録し、キャンペーンをrunningにする。
	// 項目の登録と状態・カウンタ更新は同一トランザクションで行う。
	Launch(ctx context.Context, campaignID string, items []*model.QueueItem, inCooldown int, at time.Time) error

	// UpdateStatus は状態のみを更新する（pause / resume）。
	// fromの状態でない場合は更新せずfalseを返す。
	UpdateStatus(ctx context.Context, id string, from, to model.CampaignStatus) (bool, error)

	// Cancel はキャンペーンをcancelledにし、未着手の項目（pending / scheduled）をskippedにする。
	// skippedにした項目数を返す。
	Cancel(ctx context.Context, id string, at time.Time) (int, error)

	// CompleteIfDrained は未完了の項目が残っていなければキャンペーンをcompletedにする。
	CompleteIfDrained(ctx context.Context, id string, at time.Time) (bool, error)
}

// QueueRepository はアクションキューの永続化インターフェース。
type QueueRepository interface {
	// NextPending はアイデンティティの次の項目をエンキュー順（FIFO）で返す。
	// running状態のキャンペーンの項目のみ対象。見つからない場合はnilを返す。
	NextPending(ctx context.Context, identityID int64) (*model.QueueItem, error)

	// CountPendingByIdentity はアイデンティティごとの処理待ち項目数を返す。
	CountPendingByIdentity(ctx context.Context) (map[int64]int, error)

	// MarkRunning はpendingの項目をrunningにする。更新できなかった場合はfalseを返す。
	MarkRunning(ctx context.Context, id string, at time.Time) (bool, error)

	// Finish は項目を終端状態にし、キャンペーンカウンタの加算とアクティビティの記録を
	// 同一トランザクションで行う。終端済みの項目は変更しない。
	Finish(ctx context.Context, item *model.QueueItem, entry *model.ActivityEntry) error

	// FailOpenForIdentity はアイデンティティの未着手項目をすべてfailedにする。
	FailOpenForIdentity(ctx context.Context, identityID int64, reason string, at time.Time) (int, error)

	// SkipRunning はrunningのまま残った項目をskippedにする。起動時の復旧に使う。
	SkipRunning(ctx context.Context, reason string, at time.Time) (int, error)

	// ListByCampaign はキャンペーンの項目をエンキュー順で返す。
	ListByCampaign(ctx context.Context, campaignID string, status model.QueueStatus, limit int) ([]*model.QueueItem, error)
}

// CounterRepository はアイデンティティごとの日次アクション数の永続化インターフェース。
// dayは業務タイムゾーンでの日付として扱う。
type CounterRepository interface {
	// Increment は当日のカウンタを1加算する。
	Increment(ctx context.Context, identityID int64, kind model.ActionType, day time.Time) error

	// Sum は from から to まで（両端を含む）のアクション数の合計を返す。
	Sum(ctx context.Context, identityID int64, kind model.ActionType, from, to time.Time) (int, error)

	// ForDay は指定日の全種別のカウンタを返す。
	ForDay(ctx context.Context, identityID int64, day time.Time) (model.IdentityCounters, error)
}

// ActivityFilter はアクティビティログの検索条件。
type ActivityFilter struct {
	CampaignID string
	IdentityID int64
	Limit      int
}

// ActivityRepository はアクティビティログの永続化インターフェース。
type ActivityRepository interface {
	// List は条件に一致するログを新しい順に返す。
	List(ctx context.Context, filter ActivityFilter) ([]*model.ActivityEntry, error)

	// DeleteOlderThan は before より前のログを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// TemplateRepository はコメントテンプレートの永続化インターフェース。
type TemplateRepository interface {
	// Create はテンプレートを作成する。
	Create(ctx context.Context, tmpl *model.CommentTemplate) error

	// ListActive は有効なテンプレートを返す。categoryが空の場合は全カテゴリ。
	ListActive(ctx context.Context, category string) ([]*model.CommentTemplate, error)

	// IncrementUsage は使用回数を1加算する。
	IncrementUsage(ctx context.Context, id string) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// rowScanner は *sql.Row と *sql.Rows の共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}
