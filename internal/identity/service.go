// Package identity は外部認証IDを2つのデータストアに同期する。
package identity

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/unwind/internal/metrics"
	"github.com/hitoshi/unwind/internal/model"
	"github.com/hitoshi/unwind/internal/repository"
)

// SyncInput はサインイン時にクライアントから受け取るユーザー情報。
type SyncInput struct {
	UID      string
	Email    string
	Name     *string
	PhotoURL *string
}

// Service はユーザー同期サービス。
// プライマリストアにプロフィールを、セカンダリストアにスタブをUPSERTする。
// 2つの書き込みは順次実行し、補償トランザクションは行わない。
// 片方だけ成功した状態は次回の同期または整合ジョブで解消される。
type Service struct {
	users   repository.UserRepository
	stubs   repository.UserStubRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, stubs repository.UserStubRepository, mc metrics.MetricsCollector, logger *slog.Logger) *Service {
	return &Service{users: users, stubs: stubs, metrics: mc, logger: logger}
}

// Sync はユーザーを両ストアに冪等に同期する。
// UIDまたはEmailが空の場合はValidationErrorを返す。
// 書き込み失敗時は失敗したストアを示すPersistenceErrorを返す。
func (s *Service) Sync(ctx context.Context, in SyncInput) (*model.User, error) {
	uid := strings.TrimSpace(in.UID)
	email := strings.TrimSpace(in.Email)
	if uid == "" || email == "" {
		return nil, model.NewValidationError("", "Missing required fields")
	}

	user, err := s.users.Upsert(ctx, &model.User{
		FirebaseUID: uid,
		Email:       email,
		Name:        nonEmpty(in.Name),
		PhotoURL:    nonEmpty(in.PhotoURL),
	})
	if err != nil {
		s.metrics.RecordSyncFailure(model.StorePrimary)
		s.logger.Error("user sync failed",
			slog.String("store", model.StorePrimary),
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPersistenceError(model.StorePrimary, "upsert user", err)
	}

	if err := s.stubs.Ensure(ctx, uid); err != nil {
		s.metrics.RecordSyncFailure(model.StoreSecondary)
		s.logger.Error("user sync failed",
			slog.String("store", model.StoreSecondary),
			slog.String("user_id", uid),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPersistenceError(model.StoreSecondary, "ensure user stub", err)
	}

	return user, nil
}

// nonEmpty は空白のみの文字列をnilとして扱う。
func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
