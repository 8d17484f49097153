package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresUserStubRepo はセカンダリストアのユーザースタブリポジトリ。
// スタブは外部IDのみを持ち、作成後に更新しない。
type PostgresUserStubRepo struct {
	db *sql.DB
}

// NewPostgresUserStubRepo はPostgresUserStubRepoを生成する。
func NewPostgresUserStubRepo(db *sql.DB) *PostgresUserStubRepo {
	return &PostgresUserStubRepo{db: db}
}

// Ensure はスタブが無ければ作成する。
func (r *PostgresUserStubRepo) Ensure(ctx context.Context, uid string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (firebase_uid) VALUES ($1) ON CONFLICT (firebase_uid) DO NOTHING`,
		uid,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure user stub: %w", err)
	}
	return nil
}

// EnsureMany は複数のスタブをまとめて作成し、新規に作成した件数を返す。
func (r *PostgresUserStubRepo) EnsureMany(ctx context.Context, uids []string) (int, error) {
	if len(uids) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO users (firebase_uid)
		 SELECT unnest($1::text[])
		 ON CONFLICT (firebase_uid) DO NOTHING`,
		pq.Array(uids),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure user stubs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// Delete はスタブを削除する。所有データはCASCADE削除される。
func (r *PostgresUserStubRepo) Delete(ctx context.Context, uid string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE firebase_uid = $1`, uid)
	if err != nil {
		return false, fmt.Errorf("failed to delete user stub: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ UserStubRepository = (*PostgresUserStubRepo)(nil)
