package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/senderpool/internal/model"
)

// PostgresActivityRepo はPostgreSQLを使用したアクティビティログリポジトリ。
type PostgresActivityRepo struct {
	db *sql.DB
}

// NewPostgresActivityRepo はPostgresActivityRepoを生成する。
func NewPostgresActivityRepo(db *sql.DB) *PostgresActivityRepo {
	return &PostgresActivityRepo{db: db}
}

// List は条件に一致するログを新しい順に返す。
func (r *PostgresActivityRepo) List(ctx context.Context, filter ActivityFilter) ([]*model.ActivityEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, COALESCE(campaign_id::text, ''), identity_id, identity_name, target_id, target_name,
		        action_type, status, details, created_at
		 FROM activity_log
		 WHERE ($1 = '' OR campaign_id::text = $1)
		   AND ($2 = 0 OR identity_id = $2)
		 ORDER BY created_at DESC
		 LIMIT $3`,
		filter.CampaignID, filter.IdentityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("アクティビティログの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []*model.ActivityEntry
	for rows.Next() {
		e := &model.ActivityEntry{}
		if err := rows.Scan(
			&e.ID, &e.CampaignID, &e.IdentityID, &e.IdentityName, &e.TargetID, &e.TargetName,
			&e.ActionType, &e.Status, &e.Details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("アクティビティログの読み取りに失敗しました: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アクティビティログの走査に失敗しました: %w", err)
	}
	return entries, nil
}

// DeleteOlderThan は before より前のログを削除し、削除件数を返す。
func (r *PostgresActivityRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activity_log WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("古いアクティビティログの削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ ActivityRepository = (*PostgresActivityRepo)(nil)
