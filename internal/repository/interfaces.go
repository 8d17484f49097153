// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/unwind/internal/model"
)

// UserRepository はプライマリストアのユーザープロフィール永続化インターフェース。
type UserRepository interface {
	// Upsert はfirebase_uidをキーにユーザーを冪等に作成・更新する。
	// nameとphoto_urlはnilの場合に既存値を維持する。
	Upsert(ctx context.Context, user *model.User) (*model.User, error)

	// FindByFirebaseUID は指定ユーザーを取得する。見つからない場合はnilを返す。
	FindByFirebaseUID(ctx context.Context, uid string) (*model.User, error)

	// UpdateProfile は表示名と写真URLを更新する。nilのフィールドは変更しない。
	// ユーザーが存在しない場合はnilを返す。
	UpdateProfile(ctx context.Context, uid string, name, photoURL *string) (*model.User, error)

	// DeleteByFirebaseUID はユーザーを削除する。削除した場合にtrueを返す。
	DeleteByFirebaseUID(ctx context.Context, uid string) (bool, error)

	// ListFirebaseUIDs はafterより後のfirebase_uidを昇順にlimit件返す。
	// 全件を走査するキーセットページネーションに使う。
	ListFirebaseUIDs(ctx context.Context, after string, limit int) ([]string, error)
}

// UserStubRepository はセカンダリストアのユーザースタブ永続化インターフェース。
type UserStubRepository interface {
	// Ensure はスタブが無ければ作成する。既存の場合は何もしない。
	Ensure(ctx context.Context, uid string) error

	// EnsureMany は複数のスタブをまとめて作成し、新規に作成した件数を返す。
	EnsureMany(ctx context.Context, uids []string) (int, error)

	// Delete はスタブを削除する。日記、セッション、メッセージ、ブックマークはCASCADE削除される。
	Delete(ctx context.Context, uid string) (bool, error)
}

// JournalRepository は日記の永続化インターフェース。
// 全操作は所有者のfirebase_uidで絞り込む。
type JournalRepository interface {
	// Create は日記を作成し、journal.CreatedAt/UpdatedAtを設定する。
	Create(ctx context.Context, journal *model.Journal) error

	// ListByUser はユーザーの日記を作成日時の降順で返す。
	ListByUser(ctx context.Context, uid string) ([]*model.Journal, error)

	// FindByID は日記を取得する。見つからない、または所有者が異なる場合はnilを返す。
	FindByID(ctx context.Context, id, uid string) (*model.Journal, error)

	// Update は日記を部分更新する。見つからない場合はnilを返す。
	Update(ctx context.Context, id, uid string, update model.JournalUpdate) (*model.Journal, error)

	// Delete は日記を削除する。削除した場合にtrueを返す。
	Delete(ctx context.Context, id, uid string) (bool, error)

	// MoodSeries は日記ごとの{日時, 気分}を作成日時の昇順で返す。
	MoodSeries(ctx context.Context, uid string) ([]model.MoodPoint, error)
}

// ChatSessionRepository は対話セッションとメッセージの永続化インターフェース。
type ChatSessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.ChatSession) error

	// FindByID はセッションをメッセージ件数付きで取得する。
	// 見つからない、または所有者が異なる場合はnilを返す。
	FindByID(ctx context.Context, id, uid string) (*model.ChatSession, error)

	// ListByUser はユーザーのセッションを作成日時の降順で返す。
	ListByUser(ctx context.Context, uid string) ([]*model.ChatSession, error)

	// AppendMessage はメッセージを追記し、セッションのupdated_atを進める。
	AppendMessage(ctx context.Context, message *model.Message) error

	// ListMessages はセッションのメッセージを時系列順で返す。
	ListMessages(ctx context.Context, sessionID string) ([]*model.Message, error)

	// MarkCrisis はセッションを危機対応状態にする。
	MarkCrisis(ctx context.Context, id string, at time.Time) error

	// ClearCrisis は危機対応状態を解除する。対象セッションが無い場合はfalseを返す。
	ClearCrisis(ctx context.Context, id, uid string) (bool, error)

	// FindOpenCrisis はユーザーの危機対応中のセッションのうち最新のものを返す。無い場合はnilを返す。
	FindOpenCrisis(ctx context.Context, uid string) (*model.ChatSession, error)

	// ListPendingSummary は要約が未作成または要約後に更新されたセッションのうち、
	// 危機対応中でなく、idleBefore以前から更新が無く、メッセージがminMessages件以上あるものを
	// 古い順にlimit件返す。
	ListPendingSummary(ctx context.Context, idleBefore time.Time, minMessages, limit int) ([]*model.ChatSession, error)

	// UpdateSummary はセッションの要約を設定する。asOfは要約元となったセッションのupdated_at。
	UpdateSummary(ctx context.Context, id, summary string, asOf time.Time) error
}

// BookmarkRepository はブックマークの永続化インターフェース。
// 重複登録は許容する。
type BookmarkRepository interface {
	// Create はブックマークを作成する。
	Create(ctx context.Context, bookmark *model.Bookmark) error

	// ListByUser はユーザーのブックマークを作成日時の降順で返す。
	ListByUser(ctx context.Context, uid string) ([]*model.Bookmark, error)

	// Delete はブックマークを削除する。削除した場合にtrueを返す。
	Delete(ctx context.Context, id, uid string) (bool, error)
}

// readerOr は読み取り用接続が未指定の場合に書き込み用接続を返す。
func readerOr(reader, db *sql.DB) *sql.DB {
	if reader != nil {
		return reader
	}
	return db
}
