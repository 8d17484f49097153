package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/unwind/internal/identity"
	"github.com/hitoshi/unwind/internal/model"
)

// IdentityServiceInterface はユーザー同期ハンドラーが必要とするサービスインターフェース。
type IdentityServiceInterface interface {
	Sync(ctx context.Context, in identity.SyncInput) (*model.User, error)
}

// IdentityHandler はサインイン時のユーザー同期を扱う。
type IdentityHandler struct {
	service IdentityServiceInterface
}

// NewIdentityHandler はIdentityHandlerを生成する。
func NewIdentityHandler(service IdentityServiceInterface) *IdentityHandler {
	return &IdentityHandler{service: service}
}

// syncUserRequest はユーザー同期リクエストのボディ。
type syncUserRequest struct {
	UID      string  `json:"uid"`
	Email    string  `json:"email"`
	Name     *string `json:"name"`
	PhotoURL *string `json:"photoURL"`
}

// SyncUser はユーザーを両データストアに同期する。
// POST /auth/sync-user
func (h *IdentityHandler) SyncUser(w http.ResponseWriter, r *http.Request) {
	var req syncUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	uid, err := resolveUserID(r, req.UID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if _, err := h.service.Sync(r.Context(), identity.SyncInput{
		UID:      uid,
		Email:    req.Email,
		Name:     req.Name,
		PhotoURL: req.PhotoURL,
	}); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
