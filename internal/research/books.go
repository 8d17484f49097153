package research

import (
	"context"
	"net/url"
	"strings"

	"github.com/hitoshi/unwind/internal/model"
)

// ServiceBookCatalog は書籍カタログのサービス名。
const ServiceBookCatalog = "book_catalog"

// BookSearcher は書籍検索のインターフェース。
type BookSearcher interface {
	SearchBooks(ctx context.Context, query string) ([]model.Book, error)
}

const placeholderImage = "https://images.amazon.com/images/placeholder-book.jpg"

// catalogEntry は静的カタログの1冊。storeSuffixは書店検索URLに付ける語句。
type catalogEntry struct {
	book        model.Book
	storeSuffix string
}

var staticCatalog = []catalogEntry{
	{
		book: model.Book{
			ID:          "book-1",
			Title:       "The Anxiety and Worry Workbook",
			Authors:     []string{"David A. Clark", "Aaron T. Beck"},
			Description: "A comprehensive guide to understanding and managing anxiety through cognitive behavioral techniques.",
			ImageURL:    placeholderImage,
			Rating:      4.5,
		},
		storeSuffix: "mental health book",
	},
	{
		book: model.Book{
			ID:          "book-2",
			Title:       "Feeling Good: The New Mood Therapy",
			Authors:     []string{"David D. Burns"},
			Description: "Revolutionary approach to treating depression through cognitive behavioral therapy techniques.",
			ImageURL:    placeholderImage,
			Rating:      4.7,
		},
		storeSuffix: "depression therapy book",
	},
}

// StaticCatalog はメモリ上の固定カタログから書籍を検索する。
type StaticCatalog struct{}

// SearchBooks はタイトルまたは説明文に検索語を含む書籍を返す（大文字小文字無視）。
// StoreURLは検索語を含む書店検索URLとなる。
func (StaticCatalog) SearchBooks(_ context.Context, query string) ([]model.Book, error) {
	books := make([]model.Book, 0, len(staticCatalog))
	for _, e := range staticCatalog {
		if !matchesBook(e.book, query) {
			continue
		}
		b := e.book
		b.Authors = append([]string(nil), e.book.Authors...)
		b.StoreURL = storeSearchURL(query, e.storeSuffix)
		books = append(books, b)
	}
	return books, nil
}

// matchesBook はタイトルまたは説明文が検索語を含むかを返す。
func matchesBook(b model.Book, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(b.Title), q) ||
		strings.Contains(strings.ToLower(b.Description), q)
}

func storeSearchURL(query, suffix string) string {
	v := url.Values{}
	v.Set("k", query+" "+suffix)
	return "https://amazon.com/s?" + v.Encode()
}

var _ BookSearcher = StaticCatalog{}
