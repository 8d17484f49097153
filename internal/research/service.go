// Package research は論文・書籍の検索と抄録の平易化を提供する。
package research

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/unwind/internal/metrics"
	"github.com/hitoshi/unwind/internal/model"
)

// Result は横断検索の結果。
type Result struct {
	Papers []model.Paper
	Books  []model.Book
}

// Service は論文検索と書籍検索をまとめる検索サービス。
type Service struct {
	papers     PaperSearcher
	books      BookSearcher
	simplifier Simplifier
	paperCache *cache.Cache
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewService はServiceを生成する。paperTTLが0以下の場合は論文検索結果をキャッシュしない。
func NewService(papers PaperSearcher, books BookSearcher, simplifier Simplifier, paperTTL time.Duration, mc metrics.MetricsCollector, logger *slog.Logger) *Service {
	if simplifier == nil {
		simplifier = RuleSimplifier{}
	}
	s := &Service{
		papers:     papers,
		books:      books,
		simplifier: simplifier,
		metrics:    mc,
		logger:     logger,
	}
	if paperTTL > 0 {
		s.paperCache = cache.New(paperTTL, 2*paperTTL)
	}
	return s
}

// SearchPapers は論文を検索する。scientificがfalseの場合は抄録を平易化する。
// 検索結果は(query, scientific)ごとにキャッシュする。
func (s *Service) SearchPapers(ctx context.Context, query string, scientific bool) ([]model.Paper, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.NewValidationError("query", "is required")
	}

	key := paperCacheKey(query, scientific)
	if s.paperCache != nil {
		if cached, ok := s.paperCache.Get(key); ok {
			return cached.([]model.Paper), nil
		}
	}

	start := time.Now()
	papers, err := s.papers.SearchPapers(ctx, query)
	if err != nil {
		s.metrics.RecordUpstreamCall(ServicePaperSearch, metrics.OutcomeFailure, time.Since(start))
		return nil, asUpstream(ServicePaperSearch, err)
	}
	s.metrics.RecordUpstreamCall(ServicePaperSearch, metrics.OutcomeSuccess, time.Since(start))

	if !scientific {
		for i := range papers {
			papers[i].Abstract = s.simplifier.Simplify(papers[i].Abstract)
		}
	}
	if s.paperCache != nil {
		s.paperCache.SetDefault(key, papers)
	}
	return papers, nil
}

// SearchBooks は書籍を検索する。
func (s *Service) SearchBooks(ctx context.Context, query string) ([]model.Book, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.NewValidationError("query", "is required")
	}

	start := time.Now()
	books, err := s.books.SearchBooks(ctx, query)
	if err != nil {
		s.metrics.RecordUpstreamCall(ServiceBookCatalog, metrics.OutcomeFailure, time.Since(start))
		return nil, asUpstream(ServiceBookCatalog, err)
	}
	s.metrics.RecordUpstreamCall(ServiceBookCatalog, metrics.OutcomeSuccess, time.Since(start))
	return books, nil
}

// Search は論文と書籍を並行に検索する。
// 片方の検索が失敗しても全体は失敗とせず、その結果を空として返す。
func (s *Service) Search(ctx context.Context, query string, scientific bool) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, model.NewValidationError("query", "is required")
	}

	res := &Result{Papers: []model.Paper{}, Books: []model.Book{}}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		papers, err := s.SearchPapers(gctx, query, scientific)
		if err != nil {
			s.logSourceFailure(ServicePaperSearch, err)
			return nil
		}
		res.Papers = papers
		return nil
	})
	g.Go(func() error {
		books, err := s.SearchBooks(gctx, query)
		if err != nil {
			s.logSourceFailure(ServiceBookCatalog, err)
			return nil
		}
		res.Books = books
		return nil
	})

	// 各goroutineは常にnilを返す
	_ = g.Wait()
	return res, nil
}

func (s *Service) logSourceFailure(service string, err error) {
	s.logger.Warn("search source failed, returning empty results",
		slog.String("service", service),
		slog.String("error", err.Error()),
	)
}

func paperCacheKey(query string, scientific bool) string {
	return strconv.FormatBool(scientific) + "|" + strings.ToLower(query)
}

func asUpstream(service string, err error) error {
	var ue *model.UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return model.NewUpstreamError(service, err)
}
