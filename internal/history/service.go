// Package history はセッション履歴、書き出し、ブックマークを提供する。
package history

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/unwind/internal/model"
	"github.com/hitoshi/unwind/internal/repository"
)

// Service はセッション履歴とブックマークのサービス。
type Service struct {
	sessions  repository.ChatSessionRepository
	bookmarks repository.BookmarkRepository
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(sessions repository.ChatSessionRepository, bookmarks repository.BookmarkRepository, logger *slog.Logger) *Service {
	return &Service{sessions: sessions, bookmarks: bookmarks, logger: logger}
}

// ListSessions はユーザーのセッションを新しい順に返す。
func (s *Service) ListSessions(ctx context.Context, uid string) ([]*model.ChatSession, error) {
	if err := requireUID(uid); err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByUser(ctx, uid)
	if err != nil {
		return nil, s.persistenceError("list sessions", uid, err)
	}
	if sessions == nil {
		sessions = []*model.ChatSession{}
	}
	return sessions, nil
}

// GetSession はセッションとメッセージを時系列順で返す。
func (s *Service) GetSession(ctx context.Context, id, uid string) (*model.ChatSession, []*model.Message, error) {
	if err := requireUID(uid); err != nil {
		return nil, nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil, model.NewNotFoundError("session", id)
	}
	session, err := s.sessions.FindByID(ctx, id, uid)
	if err != nil {
		return nil, nil, s.persistenceError("find session", uid, err)
	}
	if session == nil {
		return nil, nil, model.NewNotFoundError("session", id)
	}
	messages, err := s.sessions.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, s.persistenceError("list messages", uid, err)
	}
	if messages == nil {
		messages = []*model.Message{}
	}
	return session, messages, nil
}

// ExportPDF はセッションの記録をPDFとして返す。
func (s *Service) ExportPDF(ctx context.Context, id, uid string) ([]byte, error) {
	session, messages, err := s.GetSession(ctx, id, uid)
	if err != nil {
		return nil, err
	}
	b, err := RenderTranscript(session, messages)
	if err != nil {
		s.logger.Error("transcript export failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return b, nil
}

// AddBookmark は論文または書籍への参照を保存する。重複登録は拒否しない。
func (s *Service) AddBookmark(ctx context.Context, uid string, resourceType model.ResourceType, resourceID string) (*model.Bookmark, error) {
	if err := requireUID(uid); err != nil {
		return nil, err
	}
	if !resourceType.IsValid() {
		return nil, model.NewValidationError("resourceType", "must be paper or book")
	}
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return nil, model.NewValidationError("resourceId", "is required")
	}

	b := &model.Bookmark{
		ID:           uuid.NewString(),
		FirebaseUID:  uid,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if err := s.bookmarks.Create(ctx, b); err != nil {
		return nil, s.persistenceError("create bookmark", uid, err)
	}
	return b, nil
}

// ListBookmarks はユーザーのブックマークを新しい順に返す。
func (s *Service) ListBookmarks(ctx context.Context, uid string) ([]*model.Bookmark, error) {
	if err := requireUID(uid); err != nil {
		return nil, err
	}
	bookmarks, err := s.bookmarks.ListByUser(ctx, uid)
	if err != nil {
		return nil, s.persistenceError("list bookmarks", uid, err)
	}
	if bookmarks == nil {
		bookmarks = []*model.Bookmark{}
	}
	return bookmarks, nil
}

// DeleteBookmark はブックマークを削除する。
func (s *Service) DeleteBookmark(ctx context.Context, id, uid string) error {
	if err := requireUID(uid); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return model.NewNotFoundError("bookmark", id)
	}
	deleted, err := s.bookmarks.Delete(ctx, id, uid)
	if err != nil {
		return s.persistenceError("delete bookmark", uid, err)
	}
	if !deleted {
		return model.NewNotFoundError("bookmark", id)
	}
	return nil
}

func (s *Service) persistenceError(op, uid string, err error) error {
	s.logger.Error("history persistence failed",
		slog.String("store", model.StoreSecondary),
		slog.String("op", op),
		slog.String("user_id", uid),
		slog.String("error", err.Error()),
	)
	return model.NewPersistenceError(model.StoreSecondary, op, err)
}

func requireUID(uid string) error {
	if strings.TrimSpace(uid) == "" {
		return model.NewValidationError("", "Missing firebase_uid")
	}
	return nil
}
