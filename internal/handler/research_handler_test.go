package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/unwind/internal/model"
	"github.com/hitoshi/unwind/internal/research"
)

func TestResearchHandler_SearchPapers(t *testing.T) {
	svc := &mockResearchService{searchPapersFn: func(ctx context.Context, query string, scientific bool) ([]model.Paper, error) {
		if query != "anxiety" || scientific {
			t.Errorf("query/scientific = %q/%v", query, scientific)
		}
		return []model.Paper{{ID: "p-1", Title: "CBT", Authors: []string{"A"}, Abstract: "x...", URL: "https://s2/p-1", Year: 2020, Citations: 3}}, nil
	}}

	w := httptest.NewRecorder()
	NewResearchHandler(svc).SearchPapers(w, jsonRequest(t, http.MethodPost, "/papers/search", map[string]any{"query": "anxiety", "scientific": false, "userId": "uid-1"}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	papers := body["papers"].([]any)
	p := papers[0].(map[string]any)
	if p["id"] != "p-1" || p["citations"] != float64(3) || p["year"] != float64(2020) {
		t.Errorf("paper = %v", p)
	}
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
}

func TestResearchHandler_SearchPapers_UpstreamError_Returns500(t *testing.T) {
	svc := &mockResearchService{searchPapersFn: func(ctx context.Context, query string, scientific bool) ([]model.Paper, error) {
		return nil, model.NewUpstreamError(research.ServicePaperSearch, errors.New("503"))
	}}

	w := httptest.NewRecorder()
	NewResearchHandler(svc).SearchPapers(w, jsonRequest(t, http.MethodPost, "/papers/search", map[string]any{"query": "x"}))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestResearchHandler_SearchBooks_UsesAmazonURLKey(t *testing.T) {
	svc := &mockResearchService{searchBooksFn: func(ctx context.Context, query string) ([]model.Book, error) {
		return []model.Book{{ID: "book-2", Title: "Feeling Good", StoreURL: "https://amazon.com/s?k=x", ImageURL: "https://img", Rating: 4.7}}, nil
	}}

	w := httptest.NewRecorder()
	NewResearchHandler(svc).SearchBooks(w, jsonRequest(t, http.MethodPost, "/books/search", map[string]any{"query": "depression", "userId": "uid-1"}))

	books := decodeBody(t, w)["books"].([]any)
	b := books[0].(map[string]any)
	if b["amazonUrl"] != "https://amazon.com/s?k=x" || b["imageUrl"] != "https://img" || b["rating"] != 4.7 {
		t.Errorf("book = %v", b)
	}
	if authors, ok := b["authors"].([]any); !ok || len(authors) != 0 {
		t.Errorf("authors = %v, want empty array", b["authors"])
	}
}

func TestResearchHandler_Search_ReturnsBothSources(t *testing.T) {
	svc := &mockResearchService{searchFn: func(ctx context.Context, query string, scientific bool) (*research.Result, error) {
		return &research.Result{Papers: []model.Paper{}, Books: []model.Book{{ID: "book-1"}}}, nil
	}}

	w := httptest.NewRecorder()
	NewResearchHandler(svc).Search(w, jsonRequest(t, http.MethodPost, "/research/search", map[string]any{"query": "anxiety"}))

	body := decodeBody(t, w)
	if papers := body["papers"].([]any); len(papers) != 0 {
		t.Errorf("papers = %v, want empty", papers)
	}
	if books := body["books"].([]any); len(books) != 1 {
		t.Errorf("books = %v", books)
	}
}
