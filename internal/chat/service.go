package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/unwind/internal/metrics"
	"github.com/hitoshi/unwind/internal/model"
	"github.com/hitoshi/unwind/internal/repository"
)

const (
	// MaxHistory はプロバイダーに渡す過去発言の上限件数。
	MaxHistory = 10
	// titleRunes はセッションタイトルに使う最初のメッセージの文字数。
	titleRunes = 60
)

// SendInput はチャット送信の入力。
type SendInput struct {
	UserID    string
	SessionID string
	Message   string
	History   []model.ChatTurn
}

// SendResult はチャット送信の結果。
// Crisisがtrueの場合Replyは空で、Resourcesに相談窓口が入る。
type SendResult struct {
	Reply     string
	SessionID string
	Crisis    bool
	Resources []Resource
}

// Service は対話セッションサービス。
type Service struct {
	sessions  repository.ChatSessionRepository
	completer Completer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(sessions repository.ChatSessionRepository, completer Completer, mc metrics.MetricsCollector, logger *slog.Logger) *Service {
	return &Service{
		sessions:  sessions,
		completer: completer,
		metrics:   mc,
		logger:    logger,
		now:       time.Now,
	}
}

// Send はユーザーのメッセージを記録し、アシスタントの返答を返す。
//
// 危機フレーズを含むメッセージは記録のみ行い、プロバイダーには送信しない。
// セッションは危機対応状態となり、Acknowledgeされるまで以降の送信を拒否する。
// 危機対応中のセッションが残っている間は、新規セッションの開始も拒否する。
func (s *Service) Send(ctx context.Context, in SendInput) (*SendResult, error) {
	uid := strings.TrimSpace(in.UserID)
	message := strings.TrimSpace(in.Message)
	if uid == "" || message == "" {
		return nil, model.NewValidationError("", "Message and userId are required")
	}
	// 危機メッセージは履歴が不正でも記録する
	crisis := DetectCrisis(message)
	history, err := boundHistory(in.History)
	if err != nil && !crisis {
		return nil, err
	}

	session, err := s.openSession(ctx, uid, strings.TrimSpace(in.SessionID), message)
	if err != nil {
		return nil, err
	}
	if session.InCrisis() {
		return nil, model.NewCrisisAckRequiredError()
	}

	if err := s.sessions.AppendMessage(ctx, &model.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      model.RoleUser,
		Content:   message,
	}); err != nil {
		return nil, s.persistenceError("append user message", session.ID, err)
	}

	if crisis {
		if err := s.sessions.MarkCrisis(ctx, session.ID, s.now()); err != nil {
			return nil, s.persistenceError("mark crisis", session.ID, err)
		}
		s.metrics.RecordCrisisDetected()
		s.logger.Warn("crisis phrase detected, message not forwarded",
			slog.String("user_id", uid),
			slog.String("session_id", session.ID),
		)
		return &SendResult{
			SessionID: session.ID,
			Crisis:    true,
			Resources: CrisisResources,
		}, nil
	}

	turns := append(history, model.ChatTurn{Role: model.RoleUser, Content: message})
	start := s.now()
	reply, err := s.completer.Complete(ctx, SystemPrompt, turns)
	elapsed := s.now().Sub(start)
	if err != nil {
		s.metrics.RecordUpstreamCall(s.completer.Name(), metrics.OutcomeFailure, elapsed)
		s.logger.Error("chat completion failed",
			slog.String("service", s.completer.Name()),
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		var ue *model.UpstreamError
		if !errors.As(err, &ue) {
			err = model.NewUpstreamError(s.completer.Name(), err)
		}
		return nil, err
	}
	s.metrics.RecordUpstreamCall(s.completer.Name(), metrics.OutcomeSuccess, elapsed)

	if err := s.sessions.AppendMessage(ctx, &model.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      model.RoleAssistant,
		Content:   reply,
	}); err != nil {
		// 返答はユーザーに返し、記録漏れはログに残す
		s.logger.Warn("failed to record assistant reply",
			slog.String("store", model.StoreSecondary),
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}

	return &SendResult{Reply: reply, SessionID: session.ID}, nil
}

// Acknowledge は危機対応状態を解除し、セッションでの対話を再開可能にする。
func (s *Service) Acknowledge(ctx context.Context, uid, sessionID string) error {
	if strings.TrimSpace(uid) == "" {
		return model.NewValidationError("firebase_uid", "is required")
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return model.NewNotFoundError("session", sessionID)
	}
	cleared, err := s.sessions.ClearCrisis(ctx, sessionID, uid)
	if err != nil {
		return s.persistenceError("clear crisis", sessionID, err)
	}
	if !cleared {
		return model.NewNotFoundError("session", sessionID)
	}
	s.logger.Info("crisis acknowledged",
		slog.String("user_id", uid),
		slog.String("session_id", sessionID),
	)
	return nil
}

// openSession は指定セッションを取得する。IDが空の場合は新規作成する。
// 新規作成はユーザーに危機対応中のセッションが無い場合に限る。
func (s *Service) openSession(ctx context.Context, uid, sessionID, firstMessage string) (*model.ChatSession, error) {
	if sessionID != "" {
		if _, err := uuid.Parse(sessionID); err != nil {
			return nil, model.NewNotFoundError("session", sessionID)
		}
		session, err := s.sessions.FindByID(ctx, sessionID, uid)
		if err != nil {
			return nil, s.persistenceError("find session", sessionID, err)
		}
		if session == nil {
			return nil, model.NewNotFoundError("session", sessionID)
		}
		return session, nil
	}

	open, err := s.sessions.FindOpenCrisis(ctx, uid)
	if err != nil {
		return nil, s.persistenceError("find open crisis", "", err)
	}
	if open != nil {
		s.logger.Warn("new session refused while crisis is unacknowledged",
			slog.String("user_id", uid),
			slog.String("session_id", open.ID),
		)
		return nil, model.NewCrisisAckRequiredError()
	}

	session := &model.ChatSession{
		ID:          uuid.NewString(),
		FirebaseUID: uid,
		Title:       sessionTitle(firstMessage),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, s.persistenceError("create session", session.ID, err)
	}
	return session, nil
}

func (s *Service) persistenceError(op, sessionID string, err error) error {
	s.logger.Error("chat persistence failed",
		slog.String("store", model.StoreSecondary),
		slog.String("op", op),
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
	)
	return model.NewPersistenceError(model.StoreSecondary, op, err)
}

// boundHistory は履歴のロールを検証し、直近MaxHistory件に切り詰める。
func boundHistory(history []model.ChatTurn) ([]model.ChatTurn, error) {
	out := make([]model.ChatTurn, 0, min(len(history), MaxHistory)+1)
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	for _, t := range history {
		if t.Role != model.RoleUser && t.Role != model.RoleAssistant {
			return nil, model.NewValidationError("history", "role must be user or assistant")
		}
		out = append(out, t)
	}
	return out, nil
}

func sessionTitle(message string) string {
	r := []rune(message)
	if len(r) > titleRunes {
		r = r[:titleRunes]
	}
	return strings.TrimSpace(string(r))
}
