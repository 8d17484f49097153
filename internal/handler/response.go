// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/unwind/internal/middleware"
	"github.com/hitoshi/unwind/internal/model"
)

// successResponse は本文を伴わない成功レスポンス。
type successResponse struct {
	Success bool `json:"success"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// decodeJSON はリクエストボディをデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "Invalid request body",
			Category: "validation",
			Action:   "Send a valid JSON body.",
		})
		return false
	}
	return true
}

// resolveUserID はリクエストが対象とするユーザーIDを決定する。
// 検証済みユーザーIDがある場合、指定が無ければそれを使い、異なる指定はForbiddenとする。
func resolveUserID(r *http.Request, claimed string) (string, error) {
	claimed = strings.TrimSpace(claimed)
	if err := middleware.AuthorizeUser(r.Context(), claimed); err != nil {
		return "", err
	}
	if claimed == "" {
		if verified, err := middleware.UserIDFromContext(r.Context()); err == nil {
			return verified, nil
		}
	}
	return claimed, nil
}

// queryUserID はクエリのfirebase_uid（別名userId）からユーザーIDを決定する。
func queryUserID(r *http.Request) (string, error) {
	q := r.URL.Query()
	claimed := q.Get("firebase_uid")
	if claimed == "" {
		claimed = q.Get("userId")
	}
	return resolveUserID(r, claimed)
}

// handleServiceError はサービス層のエラーをHTTPステータスと統一エラーフォーマットに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr  *model.ValidationError
		notFoundErr    *model.NotFoundError
		persistenceErr *model.PersistenceError
		upstreamErr    *model.UpstreamError
		apiErr         *model.APIError
	)

	switch {
	case errors.As(err, &validationErr):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeValidation,
			Message:  validationErr.Error(),
			Category: "validation",
			Action:   "Check the required fields and try again.",
		})
	case errors.As(err, &notFoundErr):
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     model.ErrCodeNotFound,
			Message:  fmt.Sprintf("%s not found", notFoundErr.Resource),
			Category: "validation",
		})
	case errors.As(err, &apiErr):
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
	case errors.As(err, &persistenceErr):
		slog.Error("persistence failure",
			slog.String("store", persistenceErr.Store),
			slog.String("op", persistenceErr.Op),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     model.ErrCodePersistence,
			Message:  fmt.Sprintf("Failed to access the %s datastore", persistenceErr.Store),
			Category: "persistence",
			Action:   "Please wait a moment and try again.",
		})
	case errors.As(err, &upstreamErr):
		slog.Error("upstream failure",
			slog.String("service", upstreamErr.Service),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     model.ErrCodeUpstream,
			Message:  "An external service is unavailable",
			Category: "upstream",
			Action:   "Please wait a moment and try again.",
		})
	default:
		slog.Error("internal server error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeCrisisAckRequired:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
