package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/unwind/internal/identity"
	"github.com/hitoshi/unwind/internal/model"
)

func TestIdentityHandler_SyncUser_Success(t *testing.T) {
	var got identity.SyncInput
	svc := &mockIdentityService{syncFn: func(ctx context.Context, in identity.SyncInput) (*model.User, error) {
		got = in
		return &model.User{FirebaseUID: in.UID}, nil
	}}
	h := NewIdentityHandler(svc)

	req := jsonRequest(t, http.MethodPost, "/auth/sync-user", map[string]any{
		"uid":      "uid-1",
		"email":    "a@example.com",
		"name":     "Alice",
		"photoURL": "https://example.com/a.png",
	})
	w := httptest.NewRecorder()
	h.SyncUser(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := decodeBody(t, w); body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if got.UID != "uid-1" || got.Email != "a@example.com" {
		t.Errorf("input = %+v", got)
	}
	if got.Name == nil || *got.Name != "Alice" {
		t.Errorf("Name = %v, want Alice", got.Name)
	}
	if got.PhotoURL == nil || *got.PhotoURL != "https://example.com/a.png" {
		t.Errorf("PhotoURL = %v", got.PhotoURL)
	}
}

func TestIdentityHandler_SyncUser_MissingFields_Returns400(t *testing.T) {
	svc := &mockIdentityService{syncFn: func(ctx context.Context, in identity.SyncInput) (*model.User, error) {
		return nil, model.NewValidationError("", "Missing required fields")
	}}
	h := NewIdentityHandler(svc)

	w := httptest.NewRecorder()
	h.SyncUser(w, jsonRequest(t, http.MethodPost, "/auth/sync-user", map[string]any{"uid": "uid-1"}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := decodeBody(t, w); body["error"] != "Missing required fields" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestIdentityHandler_SyncUser_StoreFailure_Returns500(t *testing.T) {
	svc := &mockIdentityService{syncFn: func(ctx context.Context, in identity.SyncInput) (*model.User, error) {
		return nil, model.NewPersistenceError(model.StoreSecondary, "ensure user stub", errors.New("timeout"))
	}}
	h := NewIdentityHandler(svc)

	w := httptest.NewRecorder()
	h.SyncUser(w, jsonRequest(t, http.MethodPost, "/auth/sync-user", map[string]any{"uid": "uid-1", "email": "a@example.com"}))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestIdentityHandler_SyncUser_OtherUser_Returns403(t *testing.T) {
	svc := &mockIdentityService{syncFn: func(ctx context.Context, in identity.SyncInput) (*model.User, error) {
		t.Fatal("service should not be called")
		return nil, nil
	}}
	h := NewIdentityHandler(svc)

	req := jsonRequest(t, http.MethodPost, "/auth/sync-user", map[string]any{"uid": "uid-2", "email": "b@example.com"})
	req = withUserID(req, "uid-1")
	w := httptest.NewRecorder()
	h.SyncUser(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}
