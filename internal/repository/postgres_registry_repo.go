package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/senderpool/internal/model"
)

// PostgresRegistryRepo はPostgreSQLを使用した接触レジストリリポジトリ。
type PostgresRegistryRepo struct {
	db *sql.DB
}

// NewPostgresRegistryRepo はPostgresRegistryRepoを生成する。
func NewPostgresRegistryRepo(db *sql.DB) *PostgresRegistryRepo {
	return &PostgresRegistryRepo{db: db}
}

const registryColumns = `target_id, last_action_type, last_action_identity_id, last_action_at, cooldown_expires_at,
	connect_identity_id, connect_at, like_identity_id, like_at, comment_identity_id, comment_at,
	created_at, updated_at`

func scanRegistryEntry(row rowScanner) (*model.RegistryEntry, error) {
	e := &model.RegistryEntry{}
	var sub [3]struct {
		id sql.NullInt64
		at sql.NullTime
	}
	err := row.Scan(
		&e.TargetID, &e.LastActionType, &e.LastActionIdentityID, &e.LastActionAt, &e.CooldownExpiresAt,
		&sub[0].id, &sub[0].at, &sub[1].id, &sub[1].at, &sub[2].id, &sub[2].at,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	// 列の並びは AllActionTypes の順（connect, like, comment）と一致する
	for i, kind := range model.AllActionTypes() {
		if sub[i].id.Valid {
			e.SetRecord(kind, model.ActionRecord{IdentityID: sub[i].id.Int64, PerformedAt: sub[i].at.Time})
		}
	}
	return e, nil
}

// recordArgs は種別ごとの履歴をNULL許容の列値に変換する。
func recordArgs(r model.ActionRecord) (sql.NullInt64, sql.NullTime) {
	if !r.Done() {
		return sql.NullInt64{}, sql.NullTime{}
	}
	return sql.NullInt64{Int64: r.IdentityID, Valid: true}, sql.NullTime{Time: r.PerformedAt, Valid: true}
}

// FindByTargetID はターゲットのエントリを取得する。見つからない場合はnilを返す。
func (r *PostgresRegistryRepo) FindByTargetID(ctx context.Context, targetID string) (*model.RegistryEntry, error) {
	e, err := scanRegistryEntry(r.db.QueryRowContext(ctx,
		`SELECT `+registryColumns+` FROM contact_registry WHERE target_id = $1`, targetID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("レジストリエントリの取得に失敗しました: %w", err)
	}
	return e, nil
}

// ListByTargetIDs は複数ターゲットのエントリをまとめて取得する。
func (r *PostgresRegistryRepo) ListByTargetIDs(ctx context.Context, targetIDs []string) (map[string]*model.RegistryEntry, error) {
	result := make(map[string]*model.RegistryEntry, len(targetIDs))
	if len(targetIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+registryColumns+` FROM contact_registry WHERE target_id = ANY($1)`,
		pq.Array(targetIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("レジストリエントリの一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanRegistryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("レジストリエントリの読み取りに失敗しました: %w", err)
		}
		result[e.TargetID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レジストリエントリの走査に失敗しました: %w", err)
	}
	return result, nil
}

// Mutate はターゲットの行をロックしたうえで fn を適用し、結果をUPSERTする。
// 行が存在しない場合も pg_advisory_xact_lock で同一ターゲットへの並行更新を直列化する。
func (r *PostgresRegistryRepo) Mutate(ctx context.Context, targetID string, fn func(current *model.RegistryEntry) *model.RegistryEntry) (*model.RegistryEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, targetID); err != nil {
		return nil, fmt.Errorf("レジストリのロック取得に失敗しました: %w", err)
	}

	current, err := scanRegistryEntry(tx.QueryRowContext(ctx,
		`SELECT `+registryColumns+` FROM contact_registry WHERE target_id = $1 FOR UPDATE`, targetID,
	))
	if err == sql.ErrNoRows {
		current = nil
	} else if err != nil {
		return nil, fmt.Errorf("レジストリエントリの取得に失敗しました: %w", err)
	}

	next := fn(current)
	if next == nil {
		return current, tx.Commit()
	}

	connectID, connectAt := recordArgs(next.Connect)
	likeID, likeAt := recordArgs(next.Like)
	commentID, commentAt := recordArgs(next.Comment)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO contact_registry (`+registryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (target_id) DO UPDATE SET
		    last_action_type = EXCLUDED.last_action_type,
		    last_action_identity_id = EXCLUDED.last_action_identity_id,
		    last_action_at = EXCLUDED.last_action_at,
		    cooldown_expires_at = EXCLUDED.cooldown_expires_at,
		    connect_identity_id = EXCLUDED.connect_identity_id,
		    connect_at = EXCLUDED.connect_at,
		    like_identity_id = EXCLUDED.like_identity_id,
		    like_at = EXCLUDED.like_at,
		    comment_identity_id = EXCLUDED.comment_identity_id,
		    comment_at = EXCLUDED.comment_at,
		    updated_at = EXCLUDED.updated_at`,
		targetID, next.LastActionType, next.LastActionIdentityID, next.LastActionAt, next.CooldownExpiresAt,
		connectID, connectAt, likeID, likeAt, commentID, commentAt,
		next.CreatedAt, next.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("レジストリエントリの更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	next.TargetID = targetID
	return next, nil
}

// compile-time interface check
var _ RegistryRepository = (*PostgresRegistryRepo)(nil)
