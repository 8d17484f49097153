package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/unwind/internal/chat"
	"github.com/hitoshi/unwind/internal/model"
)

// ChatServiceInterface は対話ハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	Send(ctx context.Context, in chat.SendInput) (*chat.SendResult, error)
	Acknowledge(ctx context.Context, uid, sessionID string) error
}

// ChatHandler は対話APIのHTTPハンドラー。
type ChatHandler struct {
	service ChatServiceInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface) *ChatHandler {
	return &ChatHandler{service: service}
}

type chatTurnRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest は対話リクエストのボディ。
type chatRequest struct {
	Message   string            `json:"message"`
	UserID    string            `json:"userId"`
	SessionID string            `json:"sessionId"`
	History   []chatTurnRequest `json:"history"`
}

// chatResponse は対話レスポンス。危機検出時はresponseを空にしてresourcesを返す。
type chatResponse struct {
	Response  string          `json:"response,omitempty"`
	Success   bool            `json:"success"`
	SessionID string          `json:"sessionId"`
	Crisis    bool            `json:"crisis,omitempty"`
	Resources []chat.Resource `json:"resources,omitempty"`
}

type acknowledgeRequest struct {
	FirebaseUID string `json:"firebase_uid"`
}

// Chat はユーザーのメッセージに対するアシスタントの返答を返す。
// POST /chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	uid, err := resolveUserID(r, req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	history := make([]model.ChatTurn, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, model.ChatTurn{Role: model.Role(turn.Role), Content: turn.Content})
	}

	result, err := h.service.Send(r.Context(), chat.SendInput{
		UserID:    uid,
		SessionID: req.SessionID,
		Message:   req.Message,
		History:   history,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:  result.Reply,
		Success:   true,
		SessionID: result.SessionID,
		Crisis:    result.Crisis,
		Resources: result.Resources,
	})
}

// Acknowledge はセッションの危機対応状態を解除する。
// POST /sessions/{id}/acknowledge
func (h *ChatHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	var req acknowledgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	uid, err := resolveUserID(r, req.FirebaseUID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Acknowledge(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
