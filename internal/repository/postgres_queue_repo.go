package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/senderpool/internal/model"
)

// PostgresQueueRepo はPostgreSQLを使用したアクションキューリポジトリ。
type PostgresQueueRepo struct {
	db *sql.DB
}

// NewPostgresQueueRepo はPostgresQueueRepoを生成する。
func NewPostgresQueueRepo(db *sql.DB) *PostgresQueueRepo {
	return &PostgresQueueRepo{db: db}
}

const queueColumns = `q.id, q.seq, q.campaign_id, q.identity_id, q.target_id, q.target_name, q.action_type,
	q.status, q.payload, q.error, q.created_at, q.started_at, q.completed_at`

func scanQueueItem(row rowScanner) (*model.QueueItem, error) {
	item := &model.QueueItem{}
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&item.ID, &item.Seq, &item.CampaignID, &item.IdentityID, &item.TargetID, &item.TargetName, &item.ActionType,
		&item.Status, &item.Payload, &item.Error, &item.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	item.StartedAt = nullTimePtr(startedAt)
	item.CompletedAt = nullTimePtr(completedAt)
	return item, nil
}

// NextPending はアイデンティティの次の項目をエンキュー順で返す。見つからない場合はnilを返す。
func (r *PostgresQueueRepo) NextPending(ctx context.Context, identityID int64) (*model.QueueItem, error) {
	item, err := scanQueueItem(r.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+`
		 FROM action_queue q
		 INNER JOIN campaigns c ON c.id = q.campaign_id
		 WHERE q.identity_id = $1 AND q.status IN ('pending', 'scheduled') AND c.status = 'running'
		 ORDER BY q.seq ASC
		 LIMIT 1`,
		identityID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("次のキュー項目の取得に失敗しました: %w", err)
	}
	return item, nil
}

// CountPendingByIdentity はアイデンティティごとの処理待ち項目数を返す。
func (r *PostgresQueueRepo) CountPendingByIdentity(ctx context.Context) (map[int64]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT q.identity_id, count(*)
		 FROM action_queue q
		 INNER JOIN campaigns c ON c.id = q.campaign_id
		 WHERE q.status IN ('pending', 'scheduled') AND c.status = 'running'
		 GROUP BY q.identity_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("処理待ち件数の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("処理待ち件数の読み取りに失敗しました: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("処理待ち件数の走査に失敗しました: %w", err)
	}
	return counts, nil
}

// MarkRunning はpending / scheduledの項目をrunningにする。更新できなかった場合はfalseを返す。
func (r *PostgresQueueRepo) MarkRunning(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE action_queue SET status = 'running', started_at = $2
		 WHERE id = $1 AND status IN ('pending', 'scheduled')`,
		id, at,
	)
	if err != nil {
		return false, fmt.Errorf("キュー項目の実行開始に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return n == 1, nil
}

// Finish は項目を終端状態にし、カウンタ加算とアクティビティ記録を同一トランザクションで行う。
// 項目がすでに終端状態の場合は何も変更しない。
func (r *PostgresQueueRepo) Finish(ctx context.Context, item *model.QueueItem, entry *model.ActivityEntry) error {
	if !item.Status.Terminal() {
		return fmt.Errorf("終端状態ではありません: %s", item.Status)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE action_queue SET status = $2, payload = $3, error = $4, completed_at = $5
		 WHERE id = $1 AND status NOT IN ('completed', 'failed', 'skipped_cooldown', 'skipped')`,
		item.ID, item.Status, item.Payload, item.Error, nullTime(item.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("キュー項目の終了処理に失敗しました: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tx.Commit()
	}

	if err := applyDelta(ctx, tx, item.CampaignID, model.DeltaFor(item.Status)); err != nil {
		return err
	}
	if entry != nil {
		if err := insertActivity(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FailOpenForIdentity はアイデンティティの未着手項目をすべてfailedにする。
func (r *PostgresQueueRepo) FailOpenForIdentity(ctx context.Context, identityID int64, reason string, at time.Time) (int, error) {
	return r.terminateInTx(ctx,
		`identity_id = $4 AND status IN ('pending', 'scheduled')
		 AND campaign_id IN (SELECT id FROM campaigns WHERE status = 'running')`,
		[]any{identityID}, model.QueueStatusFailed, reason, at,
	)
}

// SkipRunning はrunningのまま残った項目をskippedにする。
// 実行結果が確認できない項目をcompletedにしないための起動時処理。
func (r *PostgresQueueRepo) SkipRunning(ctx context.Context, reason string, at time.Time) (int, error) {
	return r.terminateInTx(ctx, `status = 'running'`, nil, model.QueueStatusSkipped, reason, at)
}

func (r *PostgresQueueRepo) terminateInTx(ctx context.Context, where string, args []any, status model.QueueStatus, reason string, at time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := terminateItems(ctx, tx, where, args, status, reason, at)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}

// ListByCampaign はキャンペーンの項目をエンキュー順で返す。statusが空の場合は全状態。
func (r *PostgresQueueRepo) ListByCampaign(ctx context.Context, campaignID string, status model.QueueStatus, limit int) ([]*model.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+queueColumns+`
		 FROM action_queue q
		 WHERE q.campaign_id = $1 AND ($2 = '' OR q.status = $2)
		 ORDER BY q.seq ASC
		 LIMIT $3`,
		campaignID, string(status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("キュー項目一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("キュー項目の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("キュー項目一覧の走査に失敗しました: %w", err)
	}
	return items, nil
}

// terminateItems はwhere条件に一致する項目を一括で終端状態にし、
// キャンペーンごとのカウンタ加算と項目ごとのアクティビティ記録を行う。
// whereのプレースホルダは$4から始める（$1〜$3は状態・理由・日時）。
func terminateItems(ctx context.Context, tx *sql.Tx, where string, args []any, status model.QueueStatus, reason string, at time.Time) (int, error) {
	rows, err := tx.QueryContext(ctx,
		`UPDATE action_queue SET status = $1, error = $2, completed_at = $3
		 WHERE `+where+`
		 RETURNING campaign_id, identity_id, target_id, target_name, action_type`,
		append([]any{status, reason, at}, args...)...,
	)
	if err != nil {
		return 0, fmt.Errorf("キュー項目の一括更新に失敗しました: %w", err)
	}

	var entries []*model.ActivityEntry
	perCampaign := make(map[string]int)
	for rows.Next() {
		e := &model.ActivityEntry{Status: status, Details: reason, CreatedAt: at}
		if err := rows.Scan(&e.CampaignID, &e.IdentityID, &e.TargetID, &e.TargetName, &e.ActionType); err != nil {
			rows.Close()
			return 0, fmt.Errorf("更新済みキュー項目の読み取りに失敗しました: %w", err)
		}
		entries = append(entries, e)
		perCampaign[e.CampaignID]++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("更新済みキュー項目の走査に失敗しました: %w", err)
	}

	unit := model.DeltaFor(status)
	for campaignID, n := range perCampaign {
		d := model.CounterDelta{
			Processed: unit.Processed * n,
			Succeeded: unit.Succeeded * n,
			Failed:    unit.Failed * n,
			Skipped:   unit.Skipped * n,
		}
		if err := applyDelta(ctx, tx, campaignID, d); err != nil {
			return 0, err
		}
	}
	for _, e := range entries {
		if err := insertActivity(ctx, tx, e); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// insertActivity はアクティビティログを1件記録する。
// IdentityNameが空の場合はidentitiesテーブルの名前を使う。
func insertActivity(ctx context.Context, tx *sql.Tx, e *model.ActivityEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO activity_log (id, campaign_id, identity_id, identity_name, target_id, target_name,
		                          action_type, status, details, created_at)
		 VALUES ($1, $2, $3,
		         COALESCE(NULLIF($4::text, ''), (SELECT name FROM identities WHERE id = $3), ''),
		         $5, $6, $7, $8, $9, $10)`,
		e.ID, nullString(e.CampaignID), e.IdentityID, e.IdentityName, e.TargetID, e.TargetName,
		e.ActionType, e.Status, e.Details, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("アクティビティの記録に失敗しました: %w", err)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// compile-time interface check
var _ QueueRepository = (*PostgresQueueRepo)(nil)
