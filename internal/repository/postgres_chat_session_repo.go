package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/unwind/internal/model"
)

const sessionSelect = `
	SELECT s.id, s.firebase_uid, s.title, s.summary, s.crisis_at, s.created_at, s.updated_at,
	       (SELECT count(*) FROM messages m WHERE m.session_id = s.id) AS message_count
	FROM sessions s`

// PostgresChatSessionRepo はPostgreSQLを使用した対話セッションリポジトリ。
type PostgresChatSessionRepo struct {
	db     *sql.DB
	reader *sql.DB
}

// NewPostgresChatSessionRepo はPostgresChatSessionRepoを生成する。
func NewPostgresChatSessionRepo(db, reader *sql.DB) *PostgresChatSessionRepo {
	return &PostgresChatSessionRepo{db: db, reader: readerOr(reader, db)}
}

func scanChatSession(row rowScanner) (*model.ChatSession, error) {
	s := &model.ChatSession{}
	var summary sql.NullString
	var crisisAt sql.NullTime
	if err := row.Scan(&s.ID, &s.FirebaseUID, &s.Title, &summary, &crisisAt, &s.CreatedAt, &s.UpdatedAt, &s.MessageCount); err != nil {
		return nil, err
	}
	if summary.Valid {
		s.Summary = &summary.String
	}
	if crisisAt.Valid {
		s.CrisisAt = &crisisAt.Time
	}
	return s, nil
}

func (r *PostgresChatSessionRepo) querySessions(ctx context.Context, db *sql.DB, query string, args ...any) ([]*model.ChatSession, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []*model.ChatSession{}
	for rows.Next() {
		s, err := scanChatSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Create はセッションを作成する。
func (r *PostgresChatSessionRepo) Create(ctx context.Context, session *model.ChatSession) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO sessions (id, firebase_uid, title)
		 VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		session.ID, session.FirebaseUID, session.Title,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// FindByID はセッションをメッセージ件数付きで取得する。見つからない場合はnilを返す。
// 直前の書き込みを読むため書き込み用接続を使う。
func (r *PostgresChatSessionRepo) FindByID(ctx context.Context, id, uid string) (*model.ChatSession, error) {
	row := r.db.QueryRowContext(ctx, sessionSelect+` WHERE s.id = $1 AND s.firebase_uid = $2`, id, uid)
	s, err := scanChatSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return s, nil
}

// ListByUser はユーザーのセッションを作成日時の降順で返す。
func (r *PostgresChatSessionRepo) ListByUser(ctx context.Context, uid string) ([]*model.ChatSession, error) {
	sessions, err := r.querySessions(ctx, r.reader,
		sessionSelect+` WHERE s.firebase_uid = $1 ORDER BY s.created_at DESC, s.id`,
		uid,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// AppendMessage はメッセージを追記し、セッションのupdated_atを進める。
func (r *PostgresChatSessionRepo) AppendMessage(ctx context.Context, message *model.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO messages (id, session_id, role, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		message.ID, message.SessionID, string(message.Role), message.Content,
	).Scan(&message.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = $2 WHERE id = $1`,
		message.SessionID, message.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListMessages はセッションのメッセージを時系列順で返す。
func (r *PostgresChatSessionRepo) ListMessages(ctx context.Context, sessionID string) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages
		 WHERE session_id = $1
		 ORDER BY created_at ASC, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []*model.Message{}
	for rows.Next() {
		m := &model.Message{}
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = model.Role(role)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// MarkCrisis はセッションを危機対応状態にする。
func (r *PostgresChatSessionRepo) MarkCrisis(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET crisis_at = $2, updated_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to mark session crisis: %w", err)
	}
	return nil
}

// ClearCrisis は危機対応状態を解除する。
func (r *PostgresChatSessionRepo) ClearCrisis(ctx context.Context, id, uid string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET crisis_at = NULL, updated_at = now() WHERE id = $1 AND firebase_uid = $2`,
		id, uid,
	)
	if err != nil {
		return false, fmt.Errorf("failed to clear session crisis: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// FindOpenCrisis はユーザーの危機対応中のセッションのうち最新のものを返す。
func (r *PostgresChatSessionRepo) FindOpenCrisis(ctx context.Context, uid string) (*model.ChatSession, error) {
	row := r.db.QueryRowContext(ctx,
		sessionSelect+` WHERE s.firebase_uid = $1 AND s.crisis_at IS NOT NULL
		 ORDER BY s.crisis_at DESC, s.id
		 LIMIT 1`,
		uid,
	)
	s, err := scanChatSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find crisis session: %w", err)
	}
	return s, nil
}

// ListPendingSummary は要約対象のセッションを古い順に返す。
// 要約後にメッセージが追加されたセッションも再度対象となる。
func (r *PostgresChatSessionRepo) ListPendingSummary(ctx context.Context, idleBefore time.Time, minMessages, limit int) ([]*model.ChatSession, error) {
	sessions, err := r.querySessions(ctx, r.db,
		`SELECT * FROM (`+sessionSelect+`
		     WHERE s.crisis_at IS NULL AND s.updated_at <= $1
		       AND (s.summary IS NULL OR s.summarized_at IS NULL OR s.updated_at > s.summarized_at)
		 ) pending
		 WHERE message_count >= $2
		 ORDER BY updated_at ASC
		 LIMIT $3`,
		idleBefore, minMessages, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions pending summary: %w", err)
	}
	return sessions, nil
}

// UpdateSummary はセッションの要約とsummarized_atを設定する。updated_atは変更しない。
func (r *PostgresChatSessionRepo) UpdateSummary(ctx context.Context, id, summary string, asOf time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET summary = $2, summarized_at = $3 WHERE id = $1`,
		id, summary, asOf,
	)
	if err != nil {
		return fmt.Errorf("failed to update session summary: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ChatSessionRepository = (*PostgresChatSessionRepo)(nil)
