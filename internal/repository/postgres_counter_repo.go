package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/senderpool/internal/model"
)

const dateLayout = "2006-01-02"

// PostgresCounterRepo はPostgreSQLを使用した日次カウンタリポジトリ。
type PostgresCounterRepo struct {
	db *sql.DB
}

// NewPostgresCounterRepo はPostgresCounterRepoを生成する。
func NewPostgresCounterRepo(db *sql.DB) *PostgresCounterRepo {
	return &PostgresCounterRepo{db: db}
}

// Increment は当日のカウンタを1加算する。
func (r *PostgresCounterRepo) Increment(ctx context.Context, identityID int64, kind model.ActionType, day time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO daily_counters (day, identity_id, action_type, count)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (day, identity_id, action_type) DO UPDATE SET count = daily_counters.count + 1`,
		day.Format(dateLayout), identityID, kind,
	)
	if err != nil {
		return fmt.Errorf("日次カウンタの加算に失敗しました: %w", err)
	}
	return nil
}

// Sum は from から to まで（両端を含む）のアクション数の合計を返す。
func (r *PostgresCounterRepo) Sum(ctx context.Context, identityID int64, kind model.ActionType, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(count), 0) FROM daily_counters
		 WHERE identity_id = $1 AND action_type = $2 AND day BETWEEN $3 AND $4`,
		identityID, kind, from.Format(dateLayout), to.Format(dateLayout),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("アクション数の集計に失敗しました: %w", err)
	}
	return n, nil
}

// ForDay は指定日の全種別のカウンタを返す。
func (r *PostgresCounterRepo) ForDay(ctx context.Context, identityID int64, day time.Time) (model.IdentityCounters, error) {
	var counters model.IdentityCounters
	rows, err := r.db.QueryContext(ctx,
		`SELECT action_type, count FROM daily_counters WHERE identity_id = $1 AND day = $2`,
		identityID, day.Format(dateLayout),
	)
	if err != nil {
		return counters, fmt.Errorf("日次カウンタの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return counters, fmt.Errorf("日次カウンタの読み取りに失敗しました: %w", err)
		}
		a, err := model.ParseActionType(kind)
		if err != nil {
			continue
		}
		counters.Add(a, n)
	}
	if err := rows.Err(); err != nil {
		return counters, fmt.Errorf("日次カウンタの走査に失敗しました: %w", err)
	}
	return counters, nil
}

// compile-time interface check
var _ CounterRepository = (*PostgresCounterRepo)(nil)
