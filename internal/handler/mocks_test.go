package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/unwind/internal/chat"
	"github.com/hitoshi/unwind/internal/history"
	"github.com/hitoshi/unwind/internal/identity"
	"github.com/hitoshi/unwind/internal/journal"
	"github.com/hitoshi/unwind/internal/middleware"
	"github.com/hitoshi/unwind/internal/model"
	"github.com/hitoshi/unwind/internal/research"
	"github.com/hitoshi/unwind/internal/user"
)

// --- モック定義 ---

type mockIdentityService struct {
	syncFn func(ctx context.Context, in identity.SyncInput) (*model.User, error)
}

func (m *mockIdentityService) Sync(ctx context.Context, in identity.SyncInput) (*model.User, error) {
	if m.syncFn != nil {
		return m.syncFn(ctx, in)
	}
	return &model.User{FirebaseUID: in.UID, Email: in.Email}, nil
}

type mockChatService struct {
	sendFn        func(ctx context.Context, in chat.SendInput) (*chat.SendResult, error)
	acknowledgeFn func(ctx context.Context, uid, sessionID string) error
}

func (m *mockChatService) Send(ctx context.Context, in chat.SendInput) (*chat.SendResult, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, in)
	}
	return &chat.SendResult{Reply: "ok", SessionID: "s-1"}, nil
}

func (m *mockChatService) Acknowledge(ctx context.Context, uid, sessionID string) error {
	if m.acknowledgeFn != nil {
		return m.acknowledgeFn(ctx, uid, sessionID)
	}
	return nil
}

type mockJournalService struct {
	createFn     func(ctx context.Context, in journal.CreateInput) (*model.Journal, error)
	listFn       func(ctx context.Context, uid string) ([]*model.Journal, error)
	updateFn     func(ctx context.Context, id, uid string, update model.JournalUpdate) (*model.Journal, error)
	deleteFn     func(ctx context.Context, id, uid string) error
	moodSeriesFn func(ctx context.Context, uid string) ([]model.MoodPoint, error)
}

func (m *mockJournalService) Create(ctx context.Context, in journal.CreateInput) (*model.Journal, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return &model.Journal{}, nil
}

func (m *mockJournalService) List(ctx context.Context, uid string) ([]*model.Journal, error) {
	if m.listFn != nil {
		return m.listFn(ctx, uid)
	}
	return nil, nil
}

func (m *mockJournalService) Update(ctx context.Context, id, uid string, update model.JournalUpdate) (*model.Journal, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, uid, update)
	}
	return &model.Journal{}, nil
}

func (m *mockJournalService) Delete(ctx context.Context, id, uid string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, uid)
	}
	return nil
}

func (m *mockJournalService) MoodSeries(ctx context.Context, uid string) ([]model.MoodPoint, error) {
	if m.moodSeriesFn != nil {
		return m.moodSeriesFn(ctx, uid)
	}
	return nil, nil
}

type mockResearchService struct {
	searchPapersFn func(ctx context.Context, query string, scientific bool) ([]model.Paper, error)
	searchBooksFn  func(ctx context.Context, query string) ([]model.Book, error)
	searchFn       func(ctx context.Context, query string, scientific bool) (*research.Result, error)
}

func (m *mockResearchService) SearchPapers(ctx context.Context, query string, scientific bool) ([]model.Paper, error) {
	if m.searchPapersFn != nil {
		return m.searchPapersFn(ctx, query, scientific)
	}
	return nil, nil
}

func (m *mockResearchService) SearchBooks(ctx context.Context, query string) ([]model.Book, error) {
	if m.searchBooksFn != nil {
		return m.searchBooksFn(ctx, query)
	}
	return nil, nil
}

func (m *mockResearchService) Search(ctx context.Context, query string, scientific bool) (*research.Result, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, scientific)
	}
	return &research.Result{}, nil
}

type mockHistoryService struct {
	listSessionsFn   func(ctx context.Context, uid string) ([]*model.ChatSession, error)
	getSessionFn     func(ctx context.Context, id, uid string) (*model.ChatSession, []*model.Message, error)
	exportPDFFn      func(ctx context.Context, id, uid string) ([]byte, error)
	addBookmarkFn    func(ctx context.Context, uid string, resourceType model.ResourceType, resourceID string) (*model.Bookmark, error)
	listBookmarksFn  func(ctx context.Context, uid string) ([]*model.Bookmark, error)
	deleteBookmarkFn func(ctx context.Context, id, uid string) error
}

func (m *mockHistoryService) ListSessions(ctx context.Context, uid string) ([]*model.ChatSession, error) {
	if m.listSessionsFn != nil {
		return m.listSessionsFn(ctx, uid)
	}
	return nil, nil
}

func (m *mockHistoryService) GetSession(ctx context.Context, id, uid string) (*model.ChatSession, []*model.Message, error) {
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx, id, uid)
	}
	return &model.ChatSession{ID: id}, nil, nil
}

func (m *mockHistoryService) ExportPDF(ctx context.Context, id, uid string) ([]byte, error) {
	if m.exportPDFFn != nil {
		return m.exportPDFFn(ctx, id, uid)
	}
	return []byte("%PDF-1.3"), nil
}

func (m *mockHistoryService) AddBookmark(ctx context.Context, uid string, resourceType model.ResourceType, resourceID string) (*model.Bookmark, error) {
	if m.addBookmarkFn != nil {
		return m.addBookmarkFn(ctx, uid, resourceType, resourceID)
	}
	return &model.Bookmark{FirebaseUID: uid, ResourceType: resourceType, ResourceID: resourceID}, nil
}

func (m *mockHistoryService) ListBookmarks(ctx context.Context, uid string) ([]*model.Bookmark, error) {
	if m.listBookmarksFn != nil {
		return m.listBookmarksFn(ctx, uid)
	}
	return nil, nil
}

func (m *mockHistoryService) DeleteBookmark(ctx context.Context, id, uid string) error {
	if m.deleteBookmarkFn != nil {
		return m.deleteBookmarkFn(ctx, id, uid)
	}
	return nil
}

type mockUserService struct {
	updateProfileFn func(ctx context.Context, uid, name string, photoURL *string) (*model.User, error)
	deleteAccountFn func(ctx context.Context, uid string) (*user.DeletionReport, error)
	exportDataFn    func(ctx context.Context, uid string) (*user.Export, error)
}

func (m *mockUserService) UpdateProfile(ctx context.Context, uid, name string, photoURL *string) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, uid, name, photoURL)
	}
	return &model.User{FirebaseUID: uid}, nil
}

func (m *mockUserService) DeleteAccount(ctx context.Context, uid string) (*user.DeletionReport, error) {
	if m.deleteAccountFn != nil {
		return m.deleteAccountFn(ctx, uid)
	}
	return &user.DeletionReport{Secondary: true, Primary: true}, nil
}

func (m *mockUserService) ExportData(ctx context.Context, uid string) (*user.Export, error) {
	if m.exportDataFn != nil {
		return m.exportDataFn(ctx, uid)
	}
	return &user.Export{Profile: &model.User{FirebaseUID: uid}}, nil
}

// compile-time interface check
var (
	_ IdentityServiceInterface = (*mockIdentityService)(nil)
	_ ChatServiceInterface     = (*mockChatService)(nil)
	_ JournalServiceInterface  = (*mockJournalService)(nil)
	_ ResearchServiceInterface = (*mockResearchService)(nil)
	_ HistoryServiceInterface  = (*mockHistoryService)(nil)
	_ UserServiceInterface     = (*mockUserService)(nil)

	_ IdentityServiceInterface = (*identity.Service)(nil)
	_ ChatServiceInterface     = (*chat.Service)(nil)
	_ JournalServiceInterface  = (*journal.Service)(nil)
	_ ResearchServiceInterface = (*research.Service)(nil)
	_ HistoryServiceInterface  = (*history.Service)(nil)
	_ UserServiceInterface     = (*user.Service)(nil)
)

// --- ヘルパー ---

// withUserID はテスト用にリクエストコンテキストに検証済みユーザーIDを注入する。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入する。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}
