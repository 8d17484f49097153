// Package user はアカウント管理のドメインロジックを提供する。
package user

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/unwind/internal/model"
	"github.com/hitoshi/unwind/internal/repository"
)

// DeletionReport はアカウント削除のストア別の結果。
// 対象の行が存在して削除された場合にtrueとなる。
type DeletionReport struct {
	Secondary bool
	Primary   bool
}

// SessionExport はメッセージ付きのセッション。
type SessionExport struct {
	Session  *model.ChatSession
	Messages []*model.Message
}

// Export はユーザーの全データ。
type Export struct {
	Profile    *model.User
	Journals   []*model.Journal
	Sessions   []SessionExport
	Bookmarks  []*model.Bookmark
	ExportedAt time.Time
}

// Service はアカウント管理のサービス層。
type Service struct {
	users     repository.UserRepository
	stubs     repository.UserStubRepository
	journals  repository.JournalRepository
	sessions  repository.ChatSessionRepository
	bookmarks repository.BookmarkRepository
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	stubs repository.UserStubRepository,
	journals repository.JournalRepository,
	sessions repository.ChatSessionRepository,
	bookmarks repository.BookmarkRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		users:     users,
		stubs:     stubs,
		journals:  journals,
		sessions:  sessions,
		bookmarks: bookmarks,
		logger:    logger,
	}
}

// UpdateProfile はプライマリストアの表示名と写真URLを更新する。
// photoURLがnilの場合は保存済みの値を維持する。
func (s *Service) UpdateProfile(ctx context.Context, uid, name string, photoURL *string) (*model.User, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, model.NewValidationError("userId", "is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewValidationError("name", "is required")
	}

	user, err := s.users.UpdateProfile(ctx, uid, &name, photoURL)
	if err != nil {
		s.logger.Error("profile update failed",
			slog.String("store", model.StorePrimary),
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPersistenceError(model.StorePrimary, "update profile", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("user", uid)
	}
	return user, nil
}

// DeleteAccount はユーザーの全データを削除する。
// 削除順序: セカンダリのスタブ（CASCADE: 日記、セッション、メッセージ、ブックマーク）→ プライマリのユーザー。
// 2つの削除はトランザクションで結ばれないため、プライマリの削除に失敗した場合は
// セカンダリのみ削除済みとなる。
func (s *Service) DeleteAccount(ctx context.Context, uid string) (*DeletionReport, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, model.NewValidationError("userId", "is required")
	}

	s.logger.Info("account deletion started", slog.String("user_id", uid))

	report := &DeletionReport{}
	deleted, err := s.stubs.Delete(ctx, uid)
	if err != nil {
		s.logger.Error("account deletion failed",
			slog.String("store", model.StoreSecondary),
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		return report, model.NewPersistenceError(model.StoreSecondary, "delete user data", err)
	}
	report.Secondary = deleted

	deleted, err = s.users.DeleteByFirebaseUID(ctx, uid)
	if err != nil {
		s.logger.Error("account deletion failed",
			slog.String("store", model.StorePrimary),
			slog.String("user_id", uid),
			slog.Bool("secondary_deleted", report.Secondary),
			slog.String("error", err.Error()),
		)
		return report, model.NewPersistenceError(model.StorePrimary, "delete user", err)
	}
	report.Primary = deleted

	if !report.Primary && !report.Secondary {
		return report, model.NewNotFoundError("user", uid)
	}

	s.logger.Info("account deletion completed",
		slog.String("user_id", uid),
		slog.Bool("secondary_deleted", report.Secondary),
		slog.Bool("primary_deleted", report.Primary),
	)
	return report, nil
}

// ExportData はプロフィール、日記、セッション（メッセージ付き）、ブックマークをまとめて返す。
func (s *Service) ExportData(ctx context.Context, uid string) (*Export, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, model.NewValidationError("", "Missing firebase_uid")
	}

	profile, err := s.users.FindByFirebaseUID(ctx, uid)
	if err != nil {
		return nil, s.exportError(model.StorePrimary, "find user", uid, err)
	}
	if profile == nil {
		return nil, model.NewNotFoundError("user", uid)
	}

	journals, err := s.journals.ListByUser(ctx, uid)
	if err != nil {
		return nil, s.exportError(model.StoreSecondary, "list journals", uid, err)
	}
	sessions, err := s.sessions.ListByUser(ctx, uid)
	if err != nil {
		return nil, s.exportError(model.StoreSecondary, "list sessions", uid, err)
	}
	bookmarks, err := s.bookmarks.ListByUser(ctx, uid)
	if err != nil {
		return nil, s.exportError(model.StoreSecondary, "list bookmarks", uid, err)
	}

	out := &Export{
		Profile:    profile,
		Journals:   journals,
		Sessions:   make([]SessionExport, 0, len(sessions)),
		Bookmarks:  bookmarks,
		ExportedAt: time.Now().UTC(),
	}
	if out.Journals == nil {
		out.Journals = []*model.Journal{}
	}
	if out.Bookmarks == nil {
		out.Bookmarks = []*model.Bookmark{}
	}
	for _, session := range sessions {
		messages, err := s.sessions.ListMessages(ctx, session.ID)
		if err != nil {
			return nil, s.exportError(model.StoreSecondary, "list messages", uid, err)
		}
		if messages == nil {
			messages = []*model.Message{}
		}
		out.Sessions = append(out.Sessions, SessionExport{Session: session, Messages: messages})
	}
	return out, nil
}

func (s *Service) exportError(store, op, uid string, err error) error {
	s.logger.Error("data export failed",
		slog.String("store", store),
		slog.String("op", op),
		slog.String("user_id", uid),
		slog.String("error", err.Error()),
	)
	return model.NewPersistenceError(store, op, err)
}
