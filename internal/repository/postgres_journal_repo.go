package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/unwind/internal/model"
)

const journalColumns = `id, firebase_uid, title, content, mood_score, created_at, updated_at`

// PostgresJournalRepo はPostgreSQLを使用した日記リポジトリ。
type PostgresJournalRepo struct {
	db     *sql.DB
	reader *sql.DB
}

// NewPostgresJournalRepo はPostgresJournalRepoを生成する。
func NewPostgresJournalRepo(db, reader *sql.DB) *PostgresJournalRepo {
	return &PostgresJournalRepo{db: db, reader: readerOr(reader, db)}
}

func scanJournal(row rowScanner) (*model.Journal, error) {
	j := &model.Journal{}
	if err := row.Scan(&j.ID, &j.FirebaseUID, &j.Title, &j.Content, &j.MoodScore, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return j, nil
}

// Create は日記を作成する。
func (r *PostgresJournalRepo) Create(ctx context.Context, journal *model.Journal) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO journals (id, firebase_uid, title, content, mood_score)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		journal.ID, journal.FirebaseUID, journal.Title, journal.Content, journal.MoodScore,
	).Scan(&journal.CreatedAt, &journal.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert journal: %w", err)
	}
	return nil
}

// ListByUser はユーザーの日記を作成日時の降順で返す。
func (r *PostgresJournalRepo) ListByUser(ctx context.Context, uid string) ([]*model.Journal, error) {
	rows, err := r.reader.QueryContext(ctx,
		`SELECT `+journalColumns+` FROM journals
		 WHERE firebase_uid = $1
		 ORDER BY created_at DESC, id`,
		uid,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list journals: %w", err)
	}
	defer rows.Close()

	journals := []*model.Journal{}
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal: %w", err)
		}
		journals = append(journals, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journals: %w", err)
	}
	return journals, nil
}

// FindByID は日記を取得する。見つからない場合はnilを返す。
func (r *PostgresJournalRepo) FindByID(ctx context.Context, id, uid string) (*model.Journal, error) {
	row := r.reader.QueryRowContext(ctx,
		`SELECT `+journalColumns+` FROM journals WHERE id = $1 AND firebase_uid = $2`,
		id, uid,
	)
	j, err := scanJournal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find journal: %w", err)
	}
	return j, nil
}

// Update は日記を部分更新する。nilのフィールドは既存値を維持する。
func (r *PostgresJournalRepo) Update(ctx context.Context, id, uid string, update model.JournalUpdate) (*model.Journal, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE journals SET
		     title = COALESCE($3, title),
		     content = COALESCE($4, content),
		     mood_score = COALESCE($5, mood_score),
		     updated_at = now()
		 WHERE id = $1 AND firebase_uid = $2
		 RETURNING `+journalColumns,
		id, uid, update.Title, update.Content, update.MoodScore,
	)
	j, err := scanJournal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update journal: %w", err)
	}
	return j, nil
}

// Delete は日記を削除する。
func (r *PostgresJournalRepo) Delete(ctx context.Context, id, uid string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM journals WHERE id = $1 AND firebase_uid = $2`,
		id, uid,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete journal: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// MoodSeries は日記ごとの{日時, 気分}を作成日時の昇順で返す。同日の集約は行わない。
func (r *PostgresJournalRepo) MoodSeries(ctx context.Context, uid string) ([]model.MoodPoint, error) {
	rows, err := r.reader.QueryContext(ctx,
		`SELECT created_at, mood_score FROM journals
		 WHERE firebase_uid = $1
		 ORDER BY created_at ASC, id`,
		uid,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query mood series: %w", err)
	}
	defer rows.Close()

	points := []model.MoodPoint{}
	for rows.Next() {
		var p model.MoodPoint
		if err := rows.Scan(&p.Date, &p.Mood); err != nil {
			return nil, fmt.Errorf("failed to scan mood point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mood series: %w", err)
	}
	return points, nil
}

// compile-time interface check
var _ JournalRepository = (*PostgresJournalRepo)(nil)
