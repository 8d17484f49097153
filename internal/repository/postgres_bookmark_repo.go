package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/unwind/internal/model"
)

// PostgresBookmarkRepo はPostgreSQLを使用したブックマークリポジトリ。
type PostgresBookmarkRepo struct {
	db     *sql.DB
	reader *sql.DB
}

// NewPostgresBookmarkRepo はPostgresBookmarkRepoを生成する。
func NewPostgresBookmarkRepo(db, reader *sql.DB) *PostgresBookmarkRepo {
	return &PostgresBookmarkRepo{db: db, reader: readerOr(reader, db)}
}

// Create はブックマークを作成する。重複は許容する。
func (r *PostgresBookmarkRepo) Create(ctx context.Context, bookmark *model.Bookmark) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO bookmarks (id, firebase_uid, resource_type, resource_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		bookmark.ID, bookmark.FirebaseUID, string(bookmark.ResourceType), bookmark.ResourceID,
	).Scan(&bookmark.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bookmark: %w", err)
	}
	return nil
}

// ListByUser はユーザーのブックマークを作成日時の降順で返す。
func (r *PostgresBookmarkRepo) ListByUser(ctx context.Context, uid string) ([]*model.Bookmark, error) {
	rows, err := r.reader.QueryContext(ctx,
		`SELECT id, firebase_uid, resource_type, resource_id, created_at FROM bookmarks
		 WHERE firebase_uid = $1
		 ORDER BY created_at DESC, id`,
		uid,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer rows.Close()

	bookmarks := []*model.Bookmark{}
	for rows.Next() {
		b := &model.Bookmark{}
		var resourceType string
		if err := rows.Scan(&b.ID, &b.FirebaseUID, &resourceType, &b.ResourceID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		b.ResourceType = model.ResourceType(resourceType)
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookmarks: %w", err)
	}
	return bookmarks, nil
}

// Delete はブックマークを削除する。
func (r *PostgresBookmarkRepo) Delete(ctx context.Context, id, uid string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE id = $1 AND firebase_uid = $2`,
		id, uid,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete bookmark: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ BookmarkRepository = (*PostgresBookmarkRepo)(nil)
