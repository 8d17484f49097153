// Package journal は日記と気分推移の管理を提供する。
package journal

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/unwind/internal/model"
	"github.com/hitoshi/unwind/internal/repository"
)

// CreateInput は日記作成の入力。MoodScoreがnilの場合は本文から推定する。
type CreateInput struct {
	UID       string
	Title     string
	Content   string
	MoodScore *int
}

// Service は日記サービス。
type Service struct {
	journals repository.JournalRepository
	analyzer MoodAnalyzer
	logger   *slog.Logger
}

// NewService はServiceを生成する。analyzerがnilの場合はKeywordAnalyzerを使う。
func NewService(journals repository.JournalRepository, analyzer MoodAnalyzer, logger *slog.Logger) *Service {
	if analyzer == nil {
		analyzer = KeywordAnalyzer{}
	}
	return &Service{journals: journals, analyzer: analyzer, logger: logger}
}

// Create は日記を作成する。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Journal, error) {
	uid := strings.TrimSpace(in.UID)
	if uid == "" {
		return nil, model.NewValidationError("firebase_uid", "is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, model.NewValidationError("title", "is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, model.NewValidationError("content", "is required")
	}

	var mood int
	if in.MoodScore != nil {
		if !model.ValidMoodScore(*in.MoodScore) {
			return nil, model.NewValidationError("mood_score", "must be between 1 and 10")
		}
		mood = *in.MoodScore
	} else {
		mood = s.analyzer.Analyze(in.Content)
	}

	journal := &model.Journal{
		ID:          uuid.NewString(),
		FirebaseUID: uid,
		Title:       title,
		Content:     in.Content,
		MoodScore:   mood,
	}
	if err := s.journals.Create(ctx, journal); err != nil {
		return nil, s.persistenceError("create journal", uid, err)
	}
	return journal, nil
}

// List はユーザーの日記を新しい順に返す。
func (s *Service) List(ctx context.Context, uid string) ([]*model.Journal, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, model.NewValidationError("", "Missing firebase_uid")
	}
	journals, err := s.journals.ListByUser(ctx, uid)
	if err != nil {
		return nil, s.persistenceError("list journals", uid, err)
	}
	if journals == nil {
		journals = []*model.Journal{}
	}
	return journals, nil
}

// Update は日記を部分更新する。指定されなかったフィールドは保存済みの値を維持する。
func (s *Service) Update(ctx context.Context, id, uid string, update model.JournalUpdate) (*model.Journal, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, model.NewValidationError("firebase_uid", "is required")
	}
	if update.Title != nil {
		t := strings.TrimSpace(*update.Title)
		if t == "" {
			return nil, model.NewValidationError("title", "must not be empty")
		}
		update.Title = &t
	}
	if update.Content != nil && strings.TrimSpace(*update.Content) == "" {
		return nil, model.NewValidationError("content", "must not be empty")
	}
	if update.MoodScore != nil && !model.ValidMoodScore(*update.MoodScore) {
		return nil, model.NewValidationError("mood_score", "must be between 1 and 10")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewNotFoundError("journal", id)
	}

	journal, err := s.journals.Update(ctx, id, uid, update)
	if err != nil {
		return nil, s.persistenceError("update journal", uid, err)
	}
	if journal == nil {
		return nil, model.NewNotFoundError("journal", id)
	}
	return journal, nil
}

// Delete は日記を削除する。
func (s *Service) Delete(ctx context.Context, id, uid string) error {
	if strings.TrimSpace(uid) == "" {
		return model.NewValidationError("firebase_uid", "is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return model.NewNotFoundError("journal", id)
	}
	deleted, err := s.journals.Delete(ctx, id, uid)
	if err != nil {
		return s.persistenceError("delete journal", uid, err)
	}
	if !deleted {
		return model.NewNotFoundError("journal", id)
	}
	return nil
}

// MoodSeries は日記1件につき1点の気分推移を古い順に返す。
func (s *Service) MoodSeries(ctx context.Context, uid string) ([]model.MoodPoint, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, model.NewValidationError("", "Missing firebase_uid")
	}
	points, err := s.journals.MoodSeries(ctx, uid)
	if err != nil {
		return nil, s.persistenceError("mood series", uid, err)
	}
	if points == nil {
		points = []model.MoodPoint{}
	}
	return points, nil
}

func (s *Service) persistenceError(op, uid string, err error) error {
	s.logger.Error("journal persistence failed",
		slog.String("store", model.StoreSecondary),
		slog.String("op", op),
		slog.String("user_id", uid),
		slog.String("error", err.Error()),
	)
	return model.NewPersistenceError(model.StoreSecondary, op, err)
}
