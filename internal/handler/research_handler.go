package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/unwind/internal/model"
	"github.com/hitoshi/unwind/internal/research"
)

// ResearchServiceInterface は論文・書籍検索ハンドラーが必要とするサービスインターフェース。
type ResearchServiceInterface interface {
	SearchPapers(ctx context.Context, query string, scientific bool) ([]model.Paper, error)
	SearchBooks(ctx context.Context, query string) ([]model.Book, error)
	Search(ctx context.Context, query string, scientific bool) (*research.Result, error)
}

// ResearchHandler は論文・書籍検索のHTTPハンドラー。
type ResearchHandler struct {
	service ResearchServiceInterface
}

// NewResearchHandler はResearchHandlerを生成する。
func NewResearchHandler(service ResearchServiceInterface) *ResearchHandler {
	return &ResearchHandler{service: service}
}

// searchRequest は検索リクエストのボディ。userIdは検索自体には使わない。
type searchRequest struct {
	Query      string `json:"query"`
	Scientific bool   `json:"scientific"`
	UserID     string `json:"userId"`
}

type paperResponse struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Abstract  string   `json:"abstract"`
	URL       string   `json:"url"`
	Year      int      `json:"year,omitempty"`
	Citations int      `json:"citations"`
}

type bookResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Description string   `json:"description"`
	AmazonURL   string   `json:"amazonUrl"`
	ImageURL    string   `json:"imageUrl"`
	Rating      float64  `json:"rating"`
}

type papersEnvelope struct {
	Papers  []paperResponse `json:"papers"`
	Success bool            `json:"success"`
}

type booksEnvelope struct {
	Books   []bookResponse `json:"books"`
	Success bool           `json:"success"`
}

type researchEnvelope struct {
	Papers  []paperResponse `json:"papers"`
	Books   []bookResponse  `json:"books"`
	Success bool            `json:"success"`
}

// SearchPapers は論文を検索する。
// POST /papers/search
func (h *ResearchHandler) SearchPapers(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSearch(w, r)
	if !ok {
		return
	}

	papers, err := h.service.SearchPapers(r.Context(), req.Query, req.Scientific)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, papersEnvelope{Papers: toPaperResponses(papers), Success: true})
}

// SearchBooks は書籍を検索する。
// POST /books/search
func (h *ResearchHandler) SearchBooks(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSearch(w, r)
	if !ok {
		return
	}

	books, err := h.service.SearchBooks(r.Context(), req.Query)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booksEnvelope{Books: toBookResponses(books), Success: true})
}

// Search は論文と書籍を並行に検索する。片方の失敗は空の結果として扱う。
// POST /research/search
func (h *ResearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSearch(w, r)
	if !ok {
		return
	}

	result, err := h.service.Search(r.Context(), req.Query, req.Scientific)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, researchEnvelope{
		Papers:  toPaperResponses(result.Papers),
		Books:   toBookResponses(result.Books),
		Success: true,
	})
}

func (h *ResearchHandler) decodeSearch(w http.ResponseWriter, r *http.Request) (searchRequest, bool) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	if _, err := resolveUserID(r, req.UserID); err != nil {
		handleServiceError(w, err)
		return req, false
	}
	return req, true
}

func toPaperResponses(papers []model.Paper) []paperResponse {
	out := make([]paperResponse, 0, len(papers))
	for _, p := range papers {
		authors := p.Authors
		if authors == nil {
			authors = []string{}
		}
		out = append(out, paperResponse{
			ID:        p.ID,
			Title:     p.Title,
			Authors:   authors,
			Abstract:  p.Abstract,
			URL:       p.URL,
			Year:      p.Year,
			Citations: p.Citations,
		})
	}
	return out
}

func toBookResponses(books []model.Book) []bookResponse {
	out := make([]bookResponse, 0, len(books))
	for _, b := range books {
		authors := b.Authors
		if authors == nil {
			authors = []string{}
		}
		out = append(out, bookResponse{
			ID:          b.ID,
			Title:       b.Title,
			Authors:     authors,
			Description: b.Description,
			AmazonURL:   b.StoreURL,
			ImageURL:    b.ImageURL,
			Rating:      b.Rating,
		})
	}
	return out
}
