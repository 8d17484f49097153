package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/unwind/internal/model"
	"github.com/hitoshi/unwind/internal/user"
)

// UserServiceInterface はアカウント管理ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	UpdateProfile(ctx context.Context, uid, name string, photoURL *string) (*model.User, error)
	// DeleteAccount はセカンダリのユーザーデータ、プライマリのユーザーの順に削除する。
	DeleteAccount(ctx context.Context, uid string) (*user.DeletionReport, error)
	ExportData(ctx context.Context, uid string) (*user.Export, error)
}

// UserHandler はアカウント管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

type userResponse struct {
	FirebaseUID string    `json:"firebase_uid"`
	Email       string    `json:"email"`
	Name        *string   `json:"name"`
	PhotoURL    *string   `json:"photo_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type updateProfileRequest struct {
	UserID   string  `json:"userId"`
	Name     string  `json:"name"`
	PhotoURL *string `json:"photoURL"`
}

type deleteAccountRequest struct {
	UserID string `json:"userId"`
}

type deletionResponse struct {
	Success bool `json:"success"`
	Deleted struct {
		Secondary bool `json:"secondary"`
		Primary   bool `json:"primary"`
	} `json:"deleted"`
}

type sessionExportResponse struct {
	sessionResponse
	Messages []messageResponse `json:"messages"`
}

type exportResponse struct {
	Profile    userResponse            `json:"profile"`
	Journals   []journalResponse       `json:"journals"`
	Sessions   []sessionExportResponse `json:"sessions"`
	Bookmarks  []bookmarkResponse      `json:"bookmarks"`
	ExportedAt time.Time               `json:"exported_at"`
}

// UpdateProfile はプライマリストアのプロフィールを更新する。
// PUT /users/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	uid, err := resolveUserID(r, req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), uid, req.Name, req.PhotoURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(u), "success": true})
}

// DeleteAccount はユーザーの全データを削除する。
// DELETE /users
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req deleteAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	uid, err := resolveUserID(r, req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	report, err := h.service.DeleteAccount(r.Context(), uid)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := deletionResponse{Success: true}
	resp.Deleted.Secondary = report.Secondary
	resp.Deleted.Primary = report.Primary
	writeJSON(w, http.StatusOK, resp)
}

// ExportData はユーザーの全データをJSONで返す。
// GET /users/export?firebase_uid=
func (h *UserHandler) ExportData(w http.ResponseWriter, r *http.Request) {
	uid, err := queryUserID(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	export, err := h.service.ExportData(r.Context(), uid)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := exportResponse{
		Profile:    toUserResponse(export.Profile),
		Journals:   make([]journalResponse, 0, len(export.Journals)),
		Sessions:   make([]sessionExportResponse, 0, len(export.Sessions)),
		Bookmarks:  make([]bookmarkResponse, 0, len(export.Bookmarks)),
		ExportedAt: export.ExportedAt,
	}
	for _, j := range export.Journals {
		resp.Journals = append(resp.Journals, toJournalResponse(j))
	}
	for _, s := range export.Sessions {
		se := sessionExportResponse{
			sessionResponse: toSessionResponse(s.Session),
			Messages:        make([]messageResponse, 0, len(s.Messages)),
		}
		for _, m := range s.Messages {
			se.Messages = append(se.Messages, messageResponse{
				ID:        m.ID,
				Role:      string(m.Role),
				Content:   m.Content,
				CreatedAt: m.CreatedAt,
			})
		}
		resp.Sessions = append(resp.Sessions, se)
	}
	for _, b := range export.Bookmarks {
		resp.Bookmarks = append(resp.Bookmarks, toBookmarkResponse(b))
	}

	w.Header().Set("Content-Disposition", `attachment; filename="unwind-export.json"`)
	writeJSON(w, http.StatusOK, resp)
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		FirebaseUID: u.FirebaseUID,
		Email:       u.Email,
		Name:        u.Name,
		PhotoURL:    u.PhotoURL,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
