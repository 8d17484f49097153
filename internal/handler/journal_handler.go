package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/unwind/internal/journal"
	"github.com/hitoshi/unwind/internal/model"
)

// JournalServiceInterface は日記ハンドラーが必要とするサービスインターフェース。
type JournalServiceInterface interface {
	Create(ctx context.Context, in journal.CreateInput) (*model.Journal, error)
	List(ctx context.Context, uid string) ([]*model.Journal, error)
	Update(ctx context.Context, id, uid string, update model.JournalUpdate) (*model.Journal, error)
	Delete(ctx context.Context, id, uid string) error
	MoodSeries(ctx context.Context, uid string) ([]model.MoodPoint, error)
}

// JournalHandler は日記APIのHTTPハンドラー。
type JournalHandler struct {
	service JournalServiceInterface
}

// NewJournalHandler はJournalHandlerを生成する。
func NewJournalHandler(service JournalServiceInterface) *JournalHandler {
	return &JournalHandler{service: service}
}

// journalResponse は日記のAPIレスポンス。
type journalResponse struct {
	ID          string    `json:"id"`
	FirebaseUID string    `json:"firebase_uid"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	MoodScore   int       `json:"mood_score"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type moodPointResponse struct {
	Date time.Time `json:"date"`
	Mood int       `json:"mood"`
}

// createJournalRequest は日記作成リクエストのボディ。mood_score省略時は本文から推定する。
type createJournalRequest struct {
	FirebaseUID string `json:"firebase_uid"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	MoodScore   *int   `json:"mood_score"`
}

type updateJournalRequest struct {
	FirebaseUID string  `json:"firebase_uid"`
	Title       *string `json:"title"`
	Content     *string `json:"content"`
	MoodScore   *int    `json:"mood_score"`
}

type journalEnvelope struct {
	Journal journalResponse `json:"journal"`
	Success bool            `json:"success"`
}

// CreateJournal は日記を作成する。
// POST /journals
func (h *JournalHandler) CreateJournal(w http.ResponseWriter, r *http.Request) {
	var req createJournalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	uid, err := resolveUserID(r, req.FirebaseUID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	j, err := h.service.Create(r.Context(), journal.CreateInput{
		UID:       uid,
		Title:     req.Title,
		Content:   req.Content,
		MoodScore: req.MoodScore,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, journalEnvelope{Journal: toJournalResponse(j), Success: true})
}

// ListJournals はユーザーの日記を新しい順に返す。
// GET /journals?firebase_uid=
func (h *JournalHandler) ListJournals(w http.ResponseWriter, r *http.Request) {
	uid, err := queryUserID(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	journals, err := h.service.List(r.Context(), uid)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]journalResponse, 0, len(journals))
	for _, j := range journals {
		resp = append(resp, toJournalResponse(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"journals": resp})
}

// UpdateJournal は日記を部分更新する。
// PUT /journals/{id}
func (h *JournalHandler) UpdateJournal(w http.ResponseWriter, r *http.Request) {
	var req updateJournalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	uid, err := resolveUserID(r, req.FirebaseUID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	j, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), uid, model.JournalUpdate{
		Title:     req.Title,
		Content:   req.Content,
		MoodScore: req.MoodScore,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, journalEnvelope{Journal: toJournalResponse(j), Success: true})
}

// DeleteJournal は日記を削除する。
// DELETE /journals/{id}?firebase_uid=
func (h *JournalHandler) DeleteJournal(w http.ResponseWriter, r *http.Request) {
	uid, err := queryUserID(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), uid); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// MoodData は日記ごとの気分推移を古い順に返す。
// GET /journals/mood-data?firebase_uid=
func (h *JournalHandler) MoodData(w http.ResponseWriter, r *http.Request) {
	uid, err := queryUserID(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	points, err := h.service.MoodSeries(r.Context(), uid)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]moodPointResponse, 0, len(points))
	for _, p := range points {
		resp = append(resp, moodPointResponse{Date: p.Date, Mood: p.Mood})
	}
	writeJSON(w, http.StatusOK, map[string]any{"moodData": resp})
}

func toJournalResponse(j *model.Journal) journalResponse {
	return journalResponse{
		ID:          j.ID,
		FirebaseUID: j.FirebaseUID,
		Title:       j.Title,
		Content:     j.Content,
		MoodScore:   j.MoodScore,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}
