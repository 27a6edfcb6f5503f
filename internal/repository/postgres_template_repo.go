package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/senderpool/internal/model"
)

// PostgresTemplateRepo はPostgreSQLを使用したコメントテンプレートリポジトリ。
type PostgresTemplateRepo struct {
	db *sql.DB
}

// NewPostgresTemplateRepo はPostgresTemplateRepoを生成する。
func NewPostgresTemplateRepo(db *sql.DB) *PostgresTemplateRepo {
	return &PostgresTemplateRepo{db: db}
}

// Create はテンプレートを作成する。
func (r *PostgresTemplateRepo) Create(ctx context.Context, tmpl *model.CommentTemplate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comment_templates (id, text, category, active) VALUES ($1, $2, $3, $4)`,
		tmpl.ID, tmpl.Text, tmpl.Category, tmpl.Active,
	)
	if err != nil {
		return fmt.Errorf("コメントテンプレートの作成に失敗しました: %w", err)
	}
	return nil
}

// ListActive は有効なテンプレートを使用回数の少ない順に返す。categoryが空の場合は全カテゴリ。
func (r *PostgresTemplateRepo) ListActive(ctx context.Context, category string) ([]*model.CommentTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, text, category, active, usage_count FROM comment_templates
		 WHERE active AND ($1 = '' OR category = $1)
		 ORDER BY usage_count ASC, created_at ASC`,
		category,
	)
	if err != nil {
		return nil, fmt.Errorf("コメントテンプレートの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var templates []*model.CommentTemplate
	for rows.Next() {
		t := &model.CommentTemplate{}
		if err := rows.Scan(&t.ID, &t.Text, &t.Category, &t.Active, &t.UsageCount); err != nil {
			return nil, fmt.Errorf("コメントテンプレートの読み取りに失敗しました: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コメントテンプレートの走査に失敗しました: %w", err)
	}
	return templates, nil
}

// IncrementUsage は使用回数を1加算する。
func (r *PostgresTemplateRepo) IncrementUsage(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE comment_templates SET usage_count = usage_count + 1 WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("使用回数の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TemplateRepository = (*PostgresTemplateRepo)(nil)
