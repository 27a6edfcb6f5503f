package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/senderpool/internal/model"
)

// PostgresCampaignRepo はPostgreSQLを使用したキャンペーンリポジトリ。
type PostgresCampaignRepo struct {
	db *sql.DB
}

// NewPostgresCampaignRepo はPostgresCampaignRepoを生成する。
func NewPostgresCampaignRepo(db *sql.DB) *PostgresCampaignRepo {
	return &PostgresCampaignRepo{db: db}
}

const campaignColumns = `id, name, list_id, action_type, identity_ids, status,
	total, in_cooldown, processed, succeeded, failed, skipped,
	created_at, started_at, completed_at, updated_at`

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	c := &model.Campaign{}
	var ids pq.Int64Array
	var startedAt, completedAt sql.NullTime
	cnt := &c.Counters
	err := row.Scan(
		&c.ID, &c.Name, &c.ListID, &c.ActionType, &ids, &c.Status,
		&cnt.Total, &cnt.InCooldown, &cnt.Processed, &cnt.Succeeded, &cnt.Failed, &cnt.Skipped,
		&c.CreatedAt, &startedAt, &completedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.IdentityIDs = []int64(ids)
	c.StartedAt = nullTimePtr(startedAt)
	c.CompletedAt = nullTimePtr(completedAt)
	return c, nil
}

// Create はdraft状態のキャンペーンを作成する。
func (r *PostgresCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, name, list_id, action_type, identity_ids, status, total, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Name, c.ListID, c.ActionType, pq.Int64Array(c.IdentityIDs), c.Status,
		c.Counters.Total, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("キャンペーンの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのキャンペーンを取得する。見つからない場合はnilを返す。
func (r *PostgresCampaignRepo) FindByID(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("キャンペーンの取得に失敗しました: %w", err)
	}
	return c, nil
}

// List は全キャンペーンを作成日時の降順で返す。
func (r *PostgresCampaignRepo) List(ctx context.Context) ([]*model.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("キャンペーン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var campaigns []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("キャンペーンの読み取りに失敗しました: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("キャンペーン一覧の走査に失敗しました: %w", err)
	}
	return campaigns, nil
}

// Launch は配分結果のキュー項目を登録し、キャンペーンをrunningにする。
// draft以外のキャンペーンに対しては何も登録せずエラーを返す。
func (r *PostgresCampaignRepo) Launch(ctx context.Context, campaignID string, items []*model.QueueItem, inCooldown int, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE campaigns SET status = 'running', in_cooldown = $2, started_at = $3, updated_at = $3
		 WHERE id = $1 AND status = 'draft'`,
		campaignID, inCooldown, at,
	)
	if err != nil {
		return fmt.Errorf("キャンペーンの開始に失敗しました: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("キャンペーン %s はdraft状態ではありません", campaignID)
	}

	for _, item := range items {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO action_queue (id, campaign_id, identity_id, target_id, target_name, action_type, status, payload, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING seq`,
			item.ID, campaignID, item.IdentityID, item.TargetID, item.TargetName,
			item.ActionType, item.Status, item.Payload, item.CreatedAt,
		).Scan(&item.Seq)
		if err != nil {
			return fmt.Errorf("キュー項目の登録に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateStatus は状態のみを更新する。fromの状態でない場合はfalseを返す。
func (r *PostgresCampaignRepo) UpdateStatus(ctx context.Context, id string, from, to model.CampaignStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("キャンペーン状態の更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return n == 1, nil
}

// Cancel はキャンペーンをcancelledにし、pending / scheduled の項目をskippedにする。
// running の項目は実行層の結果を待つため変更しない。
func (r *PostgresCampaignRepo) Cancel(ctx context.Context, id string, at time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE campaigns SET status = 'cancelled', completed_at = $2, updated_at = $2
		 WHERE id = $1 AND status NOT IN ('completed', 'cancelled')`,
		id, at,
	)
	if err != nil {
		return 0, fmt.Errorf("キャンペーンのキャンセルに失敗しました: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return 0, fmt.Errorf("キャンペーン %s は終了済みです", id)
	}

	n, err := terminateItems(ctx, tx,
		`campaign_id = $4 AND status IN ('pending', 'scheduled')`, []any{id},
		model.QueueStatusSkipped, "campaign cancelled", at,
	)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}

// CompleteIfDrained は未完了の項目が残っていなければキャンペーンをcompletedにする。
func (r *PostgresCampaignRepo) CompleteIfDrained(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET status = 'completed', completed_at = $2, updated_at = $2
		 WHERE id = $1 AND status = 'running'
		   AND NOT EXISTS (
		       SELECT 1 FROM action_queue q
		       WHERE q.campaign_id = $1 AND q.status IN ('pending', 'scheduled', 'running'))`,
		id, at,
	)
	if err != nil {
		return false, fmt.Errorf("キャンペーンの完了処理に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return n == 1, nil
}

// applyDelta はキャンペーンカウンタに増分を加算する。
func applyDelta(ctx context.Context, tx *sql.Tx, campaignID string, d model.CounterDelta) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE campaigns SET
		    processed = processed + $2, succeeded = succeeded + $3,
		    failed = failed + $4, skipped = skipped + $5,
		    updated_at = now()
		 WHERE id = $1`,
		campaignID, d.Processed, d.Succeeded, d.Failed, d.Skipped,
	)
	if err != nil {
		return fmt.Errorf("キャンペーンカウンタの更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CampaignRepository = (*PostgresCampaignRepo)(nil)
