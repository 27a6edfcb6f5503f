package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/senderpool/internal/model"
)

// PostgresTargetRepo はPostgreSQLを使用したターゲット・リストリポジトリ。
type PostgresTargetRepo struct {
	db *sql.DB
}

// NewPostgresTargetRepo はPostgresTargetRepoを生成する。
func NewPostgresTargetRepo(db *sql.DB) *PostgresTargetRepo {
	return &PostgresTargetRepo{db: db}
}

const upsertTargetSQL = `INSERT INTO targets (id, name, headline, company)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET
	    name = COALESCE(NULLIF(EXCLUDED.name, ''), targets.name),
	    headline = COALESCE(NULLIF(EXCLUDED.headline, ''), targets.headline),
	    company = COALESCE(NULLIF(EXCLUDED.company, ''), targets.company)`

// UpsertTargets はターゲットを冪等に登録する。空の表示情報は既存値を維持する。
func (r *PostgresTargetRepo) UpsertTargets(ctx context.Context, targets []model.Target) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertTargets(ctx, tx, targets); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func upsertTargets(ctx context.Context, tx *sql.Tx, targets []model.Target) error {
	for _, t := range targets {
		if _, err := tx.ExecContext(ctx, upsertTargetSQL, t.ID, t.Name, t.Headline, t.Company); err != nil {
			return fmt.Errorf("ターゲットの登録に失敗しました (%s): %w", t.ID, err)
		}
	}
	return nil
}

// ListTargets は登録済みターゲットをID順で返す。
func (r *PostgresTargetRepo) ListTargets(ctx context.Context, limit int) ([]model.Target, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, headline, company FROM targets ORDER BY id LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ターゲット一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanTargets(rows)
}

func scanTargets(rows *sql.Rows) ([]model.Target, error) {
	var targets []model.Target
	for rows.Next() {
		var t model.Target
		if err := rows.Scan(&t.ID, &t.Name, &t.Headline, &t.Company); err != nil {
			return nil, fmt.Errorf("ターゲットの読み取りに失敗しました: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ターゲットの走査に失敗しました: %w", err)
	}
	return targets, nil
}

// CreateList はリストとメンバーを同一トランザクションで作成する。
// メンバーのターゲットは事前にUpsertTargetsで登録されている必要がある。
func (r *PostgresTargetRepo) CreateList(ctx context.Context, list *model.TargetList, targetIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO target_lists (id, name, description, created_at) VALUES ($1, $2, $3, $4)`,
		list.ID, list.Name, list.Description, list.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("リストの作成に失敗しました: %w", err)
	}

	for i, id := range targetIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO target_list_members (list_id, target_id, position) VALUES ($1, $2, $3)
			 ON CONFLICT (list_id, target_id) DO NOTHING`,
			list.ID, id, i,
		)
		if err != nil {
			return fmt.Errorf("リストメンバーの登録に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	list.TargetCount = len(targetIDs)
	return nil
}

const listColumns = `l.id, l.name, l.description, l.created_at,
	(SELECT count(*) FROM target_list_members m WHERE m.list_id = l.id)`

// FindList は指定IDのリストを取得する。見つからない場合はnilを返す。
func (r *PostgresTargetRepo) FindList(ctx context.Context, id string) (*model.TargetList, error) {
	list := &model.TargetList{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+listColumns+` FROM target_lists l WHERE l.id = $1`, id,
	).Scan(&list.ID, &list.Name, &list.Description, &list.CreatedAt, &list.TargetCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リストの取得に失敗しました: %w", err)
	}
	return list, nil
}

// ListLists は全リストを作成日時の降順で返す。
func (r *PostgresTargetRepo) ListLists(ctx context.Context) ([]*model.TargetList, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+listColumns+` FROM target_lists l ORDER BY l.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("リスト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var lists []*model.TargetList
	for rows.Next() {
		list := &model.TargetList{}
		if err := rows.Scan(&list.ID, &list.Name, &list.Description, &list.CreatedAt, &list.TargetCount); err != nil {
			return nil, fmt.Errorf("リストの読み取りに失敗しました: %w", err)
		}
		lists = append(lists, list)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リスト一覧の走査に失敗しました: %w", err)
	}
	return lists, nil
}

// ListMembers はリストのターゲットを登録順で返す。
func (r *PostgresTargetRepo) ListMembers(ctx context.Context, listID string) ([]model.Target, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.headline, t.company
		 FROM target_list_members m
		 INNER JOIN targets t ON t.id = m.target_id
		 WHERE m.list_id = $1
		 ORDER BY m.position ASC`,
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("リストメンバーの取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanTargets(rows)
}

// compile-time interface check
var _ TargetRepository = (*PostgresTargetRepo)(nil)
