package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/senderpool/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したアイデンティティリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

const identityColumns = `id, name, email, browser_profile, status,
	connect_daily, connect_weekly, like_daily, like_weekly, comment_daily, comment_weekly,
	last_active_at, created_at, updated_at`

func scanIdentity(row rowScanner) (*model.Identity, error) {
	identity := &model.Identity{}
	var lastActive sql.NullTime
	q := &identity.Quotas
	err := row.Scan(
		&identity.ID, &identity.Name, &identity.Email, &identity.BrowserProfile, &identity.Status,
		&q.Connect.Daily, &q.Connect.Weekly, &q.Like.Daily, &q.Like.Weekly, &q.Comment.Daily, &q.Comment.Weekly,
		&lastActive, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	identity.LastActiveAt = nullTimePtr(lastActive)
	return identity, nil
}

// Create はアイデンティティを作成し、採番したIDをidentity.IDに設定する。
func (r *PostgresIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	q := identity.Quotas
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO identities (name, email, browser_profile, status,
		    connect_daily, connect_weekly, like_daily, like_weekly, comment_daily, comment_weekly,
		    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		identity.Name, identity.Email, identity.BrowserProfile, identity.Status,
		q.Connect.Daily, q.Connect.Weekly, q.Like.Daily, q.Like.Weekly, q.Comment.Daily, q.Comment.Weekly,
		identity.CreatedAt, identity.UpdatedAt,
	).Scan(&identity.ID)
	if err != nil {
		return fmt.Errorf("アイデンティティの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのアイデンティティを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id int64) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アイデンティティの取得に失敗しました: %w", err)
	}
	return identity, nil
}

// List は全アイデンティティをID昇順で返す。
func (r *PostgresIdentityRepo) List(ctx context.Context) ([]*model.Identity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("アイデンティティ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var identities []*model.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("アイデンティティの読み取りに失敗しました: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アイデンティティ一覧の走査に失敗しました: %w", err)
	}
	return identities, nil
}

// Count は登録済みアイデンティティ数を返す。
func (r *PostgresIdentityRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM identities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("アイデンティティ数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// UpdateStatus は状態を更新する。
func (r *PostgresIdentityRepo) UpdateStatus(ctx context.Context, id int64, status model.IdentityStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("アイデンティティ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateQuotas はアクション種別ごとの上限値を更新する。
func (r *PostgresIdentityRepo) UpdateQuotas(ctx context.Context, id int64, quotas model.Quotas) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET
		    connect_daily = $2, connect_weekly = $3,
		    like_daily = $4, like_weekly = $5,
		    comment_daily = $6, comment_weekly = $7,
		    updated_at = now()
		 WHERE id = $1`,
		id,
		quotas.Connect.Daily, quotas.Connect.Weekly,
		quotas.Like.Daily, quotas.Like.Weekly,
		quotas.Comment.Daily, quotas.Comment.Weekly,
	)
	if err != nil {
		return fmt.Errorf("上限値の更新に失敗しました: %w", err)
	}
	return nil
}

// TouchLastActive は最終アクション日時を更新する。
func (r *PostgresIdentityRepo) TouchLastActive(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET last_active_at = $2, updated_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("最終アクション日時の更新に失敗しました: %w", err)
	}
	return nil
}

// nullTimePtr はsql.NullTimeを*time.Timeに変換する。
func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
