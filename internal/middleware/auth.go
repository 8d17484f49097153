// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/unwind/internal/auth"
	"github.com/hitoshi/unwind/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var userIDContextKey = contextKey("user_id")

// TokenVerifier はIDトークンの検証インターフェース。
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.Token, error)
}

// NewFirebaseAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 検証済みのユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// トークンが無い、または不正な場合は401を返す。
// verifierがnilの場合（ローカル開発）は何もせずに次へ渡す。
func NewFirebaseAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
				return
			}

			token, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				level := slog.LevelWarn
				if !errors.Is(err, auth.ErrInvalidToken) {
					level = slog.LevelError
				}
				logger.Log(r.Context(), level, "id token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
				return
			}

			noteUserID(r.Context(), token.UID)
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), token.UID)))
		})
	}
}

// UserIDFromContext はリクエストコンテキストから検証済みユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// AuthorizeUser はリクエストが指定ユーザーのデータにアクセスできるかを検証する。
// 検証済みユーザーIDがあり、それが指定ユーザーと異なる場合はForbiddenを返す。
// 認証が無効な構成ではリクエスト中のユーザーIDをそのまま信頼する。
func AuthorizeUser(ctx context.Context, uid string) error {
	verified, err := UserIDFromContext(ctx)
	if err != nil {
		return nil
	}
	if uid != "" && uid != verified {
		return model.NewForbiddenError()
	}
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorizedError() *model.APIError {
	return &model.APIError{
		Code:     model.ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Sign in again and retry.",
	}
}
