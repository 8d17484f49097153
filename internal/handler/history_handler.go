package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/unwind/internal/model"
)

// HistoryServiceInterface はセッション履歴・ブックマークハンドラーが必要とするサービスインターフェース。
type HistoryServiceInterface interface {
	ListSessions(ctx context.Context, uid string) ([]*model.ChatSession, error)
	GetSession(ctx context.Context, id, uid string) (*model.ChatSession, []*model.Message, error)
	ExportPDF(ctx context.Context, id, uid string) ([]byte, error)
	AddBookmark(ctx context.Context, uid string, resourceType model.ResourceType, resourceID string) (*model.Bookmark, error)
	ListBookmarks(ctx context.Context, uid string) ([]*model.Bookmark, error)
	DeleteBookmark(ctx context.Context, id, uid string) error
}

// HistoryHandler はセッション履歴とブックマークのHTTPハンドラー。
type HistoryHandler struct {
	service HistoryServiceInterface
}

// NewHistoryHandler はHistoryHandlerを生成する。
func NewHistoryHandler(service HistoryServiceInterface) *HistoryHandler {
	return &HistoryHandler{service: service}
}

// sessionResponse はセッションのAPIレスポンス。
type sessionResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Summary      *string   `json:"summary"`
	Crisis       bool      `json:"crisis"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type bookmarkResponse struct {
	ID           string    `json:"id"`
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	CreatedAt    time.Time `json:"created_at"`
}

type sessionDetailResponse struct {
	Session  sessionResponse   `json:"session"`
	Messages []messageResponse `json:"messages"`
}

type exportPDFRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type addBookmarkRequest struct {
	UserID       string `json:"userId"`
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
}

type bookmarkEnvelope struct {
	Bookmark bookmarkResponse `json:"bookmark"`
	Success  bool             `json:"success"`
}

// ListSessions はユーザーのセッションを新しい順に返す。
// GET /sessions?firebase_uid=
func (h *HistoryHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	uid, err := queryUserID(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), uid)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, toSessionResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": resp})
}

// GetSession はセッションとメッセージを返す。
// GET /sessions/{id}?firebase_uid=
func (h *HistoryHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	uid, err := queryUserID(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	session, messages, err := h.service.GetSession(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := sessionDetailResponse{
		Session:  toSessionResponse(session),
		Messages: make([]messageResponse, 0, len(messages)),
	}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, messageResponse{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExportPDF はセッションの記録をPDFとして返す。
// POST /sessions/pdf
func (h *HistoryHandler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	var req exportPDFRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	uid, err := resolveUserID(r, req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.writePDF(w, r, req.SessionID, uid)
}

// DownloadPDF はセッションの記録をPDFとして返す。
// GET /sessions/{id}/pdf?firebase_uid=
func (h *HistoryHandler) DownloadPDF(w http.ResponseWriter, r *http.Request) {
	uid, err := queryUserID(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.writePDF(w, r, chi.URLParam(r, "id"), uid)
}

func (h *HistoryHandler) writePDF(w http.ResponseWriter, r *http.Request, sessionID, uid string) {
	doc, err := h.service.ExportPDF(r.Context(), sessionID, uid)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="session-%s.pdf"`, sessionID))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// AddBookmark は論文または書籍をブックマークする。
// POST /bookmarks
func (h *HistoryHandler) AddBookmark(w http.ResponseWriter, r *http.Request) {
	var req addBookmarkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	uid, err := resolveUserID(r, req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	b, err := h.service.AddBookmark(r.Context(), uid, model.ResourceType(req.ResourceType), req.ResourceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookmarkEnvelope{Bookmark: toBookmarkResponse(b), Success: true})
}

// ListBookmarks はユーザーのブックマークを新しい順に返す。
// GET /bookmarks?firebase_uid=
func (h *HistoryHandler) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	uid, err := queryUserID(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	bookmarks, err := h.service.ListBookmarks(r.Context(), uid)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]bookmarkResponse, 0, len(bookmarks))
	for _, b := range bookmarks {
		resp = append(resp, toBookmarkResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookmarks": resp})
}

// DeleteBookmark はブックマークを削除する。
// DELETE /bookmarks/{id}?firebase_uid=
func (h *HistoryHandler) DeleteBookmark(w http.ResponseWriter, r *http.Request) {
	uid, err := queryUserID(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.DeleteBookmark(r.Context(), chi.URLParam(r, "id"), uid); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func toSessionResponse(s *model.ChatSession) sessionResponse {
	return sessionResponse{
		ID:           s.ID,
		Title:        s.Title,
		Summary:      s.Summary,
		Crisis:       s.InCrisis(),
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func toBookmarkResponse(b *model.Bookmark) bookmarkResponse {
	return bookmarkResponse{
		ID:           b.ID,
		ResourceType: string(b.ResourceType),
		ResourceID:   b.ResourceID,
		CreatedAt:    b.CreatedAt,
	}
}
