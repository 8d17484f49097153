package research

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hitoshi/unwind/internal/model"
	"github.com/hitoshi/unwind/internal/security"
)

const testCatalogFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <id>urn:catalog</id>
  <title>Wellbeing Catalog</title>
  <updated>2024-05-01T00:00:00Z</updated>
  <entry>
    <id>urn:isbn:9780000000001</id>
    <title>Mindful Breathing</title>
    <author><name>Jane Roe</name></author>
    <updated>2024-05-01T00:00:00Z</updated>
    <summary type="html">&lt;p&gt;Short exercises for &lt;b&gt;stress&lt;/b&gt; relief.&lt;/p&gt;</summary>
    <link rel="alternate" type="text/html" href="https://catalog.example.org/books/1"/>
    <link rel="enclosure" type="image/jpeg" href="https://catalog.example.org/covers/1.jpg"/>
  </entry>
  <entry>
    <id>urn:isbn:9780000000002</id>
    <title>Sleep Better</title>
    <updated>2024-05-01T00:00:00Z</updated>
    <summary>A practical guide to insomnia.</summary>
    <link rel="alternate" type="text/html" href="https://catalog.example.org/books/2"/>
  </entry>
  <entry>
    <id>urn:isbn:9780000000003</id>
    <title></title>
    <updated>2024-05-01T00:00:00Z</updated>
  </entry>
</feed>`

func newTestFeedCatalog(t *testing.T, handler http.HandlerFunc) *FeedCatalog {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	var buf bytes.Buffer
	return NewFeedCatalog(server.URL+"/opds.xml", server.Client(), security.NewTextSanitizer(), newTestLogger(&buf))
}

func TestFeedCatalog_SearchBooks(t *testing.T) {
	c := newTestFeedCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(testCatalogFeed))
	})

	books, err := c.SearchBooks(context.Background(), "stress")
	if err != nil {
		t.Fatalf("SearchBooks がエラーを返した: %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("books = %d, want 1", len(books))
	}
	b := books[0]
	if b.ID != "urn:isbn:9780000000001" || b.Title != "Mindful Breathing" {
		t.Errorf("book = %+v", b)
	}
	if b.Description != "Short exercises for stress relief." {
		t.Errorf("Description = %q", b.Description)
	}
	if len(b.Authors) != 1 || b.Authors[0] != "Jane Roe" {
		t.Errorf("Authors = %v", b.Authors)
	}
	if b.StoreURL != "https://catalog.example.org/books/1" {
		t.Errorf("StoreURL = %q", b.StoreURL)
	}
	if b.ImageURL != "https://catalog.example.org/covers/1.jpg" {
		t.Errorf("ImageURL = %q", b.ImageURL)
	}
}

func TestFeedCatalog_SearchBooks_SkipsUntitledEntries(t *testing.T) {
	c := newTestFeedCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testCatalogFeed))
	})

	books, err := c.SearchBooks(context.Background(), "")
	if err != nil {
		t.Fatalf("SearchBooks がエラーを返した: %v", err)
	}
	if len(books) != 2 {
		t.Errorf("books = %d, want 2", len(books))
	}
}

func TestFeedCatalog_CachesFeed(t *testing.T) {
	var fetches atomic.Int32
	c := newTestFeedCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte(testCatalogFeed))
	})

	for _, q := range []string{"sleep", "stress", "insomnia"} {
		if _, err := c.SearchBooks(context.Background(), q); err != nil {
			t.Fatalf("SearchBooks(%q) がエラーを返した: %v", q, err)
		}
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
}

func TestFeedCatalog_FetchFailure_ReturnsUpstreamError(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"not a feed", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("<html><body>hi</body></html>")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestFeedCatalog(t, tt.handler)
			_, err := c.SearchBooks(context.Background(), "x")
			var ue *model.UpstreamError
			if !errors.As(err, &ue) || ue.Service != ServiceBookCatalog {
				t.Fatalf("error = %v, want UpstreamError(%s)", err, ServiceBookCatalog)
			}
		})
	}
}
