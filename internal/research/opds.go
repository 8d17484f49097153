package research

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/patrickmn/go-cache"

	"github.com/hitoshi/unwind/internal/model"
	"github.com/hitoshi/unwind/internal/security"
)

const (
	feedCatalogTTL     = time.Hour
	feedCatalogKey     = "entries"
	maxFeedCatalogSize = 5 << 20
)

// FeedCatalog はOPDS/Atom形式の書籍カタログフィードから書籍を検索する。
// フィードは1時間キャッシュし、検索は静的カタログと同じ部分一致規則で行う。
type FeedCatalog struct {
	feedURL    string
	httpClient *http.Client
	sanitizer  security.TextSanitizer
	logger     *slog.Logger
	cache      *cache.Cache
}

// NewFeedCatalog はFeedCatalogを生成する。
// httpClientには外部接続制限付きのクライアントを渡す。
func NewFeedCatalog(feedURL string, httpClient *http.Client, sanitizer security.TextSanitizer, logger *slog.Logger) *FeedCatalog {
	return &FeedCatalog{
		feedURL:    feedURL,
		httpClient: httpClient,
		sanitizer:  sanitizer,
		logger:     logger,
		cache:      cache.New(feedCatalogTTL, 2*feedCatalogTTL),
	}
}

// SearchBooks はカタログから検索語に一致する書籍を返す。
func (c *FeedCatalog) SearchBooks(ctx context.Context, query string) ([]model.Book, error) {
	entries, err := c.entries(ctx)
	if err != nil {
		return nil, err
	}
	books := make([]model.Book, 0)
	for _, b := range entries {
		if matchesBook(b, query) {
			books = append(books, b)
		}
	}
	return books, nil
}

func (c *FeedCatalog) entries(ctx context.Context) ([]model.Book, error) {
	if cached, ok := c.cache.Get(feedCatalogKey); ok {
		return cached.([]model.Book), nil
	}

	feed, err := c.fetch(ctx)
	if err != nil {
		c.logger.Error("book catalog fetch failed",
			slog.String("service", ServiceBookCatalog),
			slog.String("feed_url", c.feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamError(ServiceBookCatalog, err)
	}

	books := convertFeedItems(feed.Items, c.sanitizer)
	c.cache.SetDefault(feedCatalogKey, books)
	c.logger.Info("book catalog refreshed",
		slog.String("feed_url", c.feedURL),
		slog.Int("entries", len(books)),
	)
	return books, nil
}

func (c *FeedCatalog) fetch(ctx context.Context) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedCatalogSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

// convertFeedItems はフィードのエントリを書籍に変換する。タイトルの無いエントリは除外する。
func convertFeedItems(items []*gofeed.Item, sanitizer security.TextSanitizer) []model.Book {
	books := make([]model.Book, 0, len(items))
	for _, item := range items {
		title := sanitizer.PlainText(item.Title)
		if title == "" {
			continue
		}
		b := model.Book{
			ID:       item.GUID,
			Title:    title,
			StoreURL: item.Link,
			Authors:  make([]string, 0, len(item.Authors)),
		}
		if b.ID == "" {
			b.ID = item.Link
		}
		for _, a := range item.Authors {
			if a != nil && strings.TrimSpace(a.Name) != "" {
				b.Authors = append(b.Authors, strings.TrimSpace(a.Name))
			}
		}
		desc := item.Description
		if desc == "" {
			desc = item.Content
		}
		b.Description = sanitizer.PlainText(desc)
		if item.Image != nil {
			b.ImageURL = item.Image.URL
		} else {
			b.ImageURL = imageFromEnclosures(item.Enclosures)
		}
		books = append(books, b)
	}
	return books
}

func imageFromEnclosures(enclosures []*gofeed.Enclosure) string {
	for _, e := range enclosures {
		if e != nil && strings.HasPrefix(e.Type, "image/") {
			return e.URL
		}
	}
	return ""
}

var _ BookSearcher = (*FeedCatalog)(nil)
