package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/unwind/internal/model"
)

const userColumns = `id, firebase_uid, email, name, photo_url, created_at, updated_at`

// PostgresUserRepo はプライマリストアのPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db     *sql.DB
	reader *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
// readerがnilの場合は読み取りにもdbを使う。
func NewPostgresUserRepo(db, reader *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db, reader: readerOr(reader, db)}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var name, photoURL sql.NullString
	if err := row.Scan(&user.ID, &user.FirebaseUID, &user.Email, &name, &photoURL, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	if name.Valid {
		user.Name = &name.String
	}
	if photoURL.Valid {
		user.PhotoURL = &photoURL.String
	}
	return user, nil
}

// Upsert はfirebase_uidをキーにユーザーを冪等に作成・更新する。
// emailは常に上書きし、nameとphoto_urlはnilの場合に既存値を維持する。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (firebase_uid, email, name, photo_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 ON CONFLICT (firebase_uid) DO UPDATE SET
		     email = EXCLUDED.email,
		     name = COALESCE(EXCLUDED.name, users.name),
		     photo_url = COALESCE(EXCLUDED.photo_url, users.photo_url),
		     updated_at = now()
		 RETURNING `+userColumns,
		user.FirebaseUID, user.Email, user.Name, user.PhotoURL,
	)
	saved, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return saved, nil
}

// FindByFirebaseUID は指定ユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByFirebaseUID(ctx context.Context, uid string) (*model.User, error) {
	row := r.reader.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE firebase_uid = $1`,
		uid,
	)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by firebase uid: %w", err)
	}
	return user, nil
}

// UpdateProfile は表示名と写真URLを更新する。nilのフィールドは変更しない。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, uid string, name, photoURL *string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE users SET
		     name = COALESCE($2, name),
		     photo_url = COALESCE($3, photo_url),
		     updated_at = now()
		 WHERE firebase_uid = $1
		 RETURNING `+userColumns,
		uid, name, photoURL,
	)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}
	return user, nil
}

// DeleteByFirebaseUID はユーザーを削除する。
func (r *PostgresUserRepo) DeleteByFirebaseUID(ctx context.Context, uid string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE firebase_uid = $1`, uid)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListFirebaseUIDs はafterより後のfirebase_uidを昇順にlimit件返す。
func (r *PostgresUserRepo) ListFirebaseUIDs(ctx context.Context, after string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT firebase_uid FROM users WHERE firebase_uid > $1 ORDER BY firebase_uid LIMIT $2`,
		after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list firebase uids: %w", err)
	}
	defer rows.Close()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("failed to scan firebase uid: %w", err)
		}
		uids = append(uids, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate firebase uids: %w", err)
	}
	return uids, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
