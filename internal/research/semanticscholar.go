package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/unwind/internal/model"
	"github.com/hitoshi/unwind/internal/security"
)

const (
	// ServicePaperSearch は論文検索APIのサービス名。ログとメトリクスのラベルに使う。
	ServicePaperSearch = "semantic_scholar"

	defaultPaperLimit = 10
	paperFields       = "title,authors,abstract,url,year,citationCount"
)

// PaperSearcher は論文検索のインターフェース。
type PaperSearcher interface {
	SearchPapers(ctx context.Context, query string) ([]model.Paper, error)
}

// SemanticScholarClient はSemantic Scholar Graph APIの論文検索クライアント。
type SemanticScholarClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	sanitizer  security.TextSanitizer
	endpoint   string
	apiKey     string
	limit      int
}

// NewSemanticScholarClient はSemanticScholarClientを生成する。
func NewSemanticScholarClient(endpoint, apiKey string, httpClient *http.Client, sanitizer security.TextSanitizer, logger *slog.Logger) *SemanticScholarClient {
	return &SemanticScholarClient{
		httpClient: httpClient,
		logger:     logger,
		sanitizer:  sanitizer,
		endpoint:   endpoint,
		apiKey:     apiKey,
		limit:      defaultPaperLimit,
	}
}

type semanticScholarResponse struct {
	Data []struct {
		PaperID string `json:"paperId"`
		Title   string `json:"title"`
		Authors []struct {
			Name string `json:"name"`
		} `json:"authors"`
		Abstract      *string `json:"abstract"`
		URL           string  `json:"url"`
		Year          *int    `json:"year"`
		CitationCount *int    `json:"citationCount"`
	} `json:"data"`
}

// SearchPapers は論文を検索する。抄録はタグを除去した平文で返す。
// dataフィールドが無い応答は0件として扱う。
func (c *SemanticScholarClient) SearchPapers(ctx context.Context, query string) ([]model.Paper, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, model.NewUpstreamError(ServicePaperSearch, fmt.Errorf("invalid endpoint: %w", err))
	}
	q := reqURL.Query()
	q.Set("query", query)
	q.Set("limit", fmt.Sprint(c.limit))
	q.Set("fields", paperFields)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, model.NewUpstreamError(ServicePaperSearch, err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("paper search request failed",
			slog.String("service", ServicePaperSearch),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamError(ServicePaperSearch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("paper search returned error status",
			slog.String("service", ServicePaperSearch),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewUpstreamError(ServicePaperSearch, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var parsed semanticScholarResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&parsed); err != nil {
		return nil, model.NewUpstreamError(ServicePaperSearch, fmt.Errorf("failed to decode response: %w", err))
	}

	papers := make([]model.Paper, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		p := model.Paper{
			ID:      d.PaperID,
			Title:   c.sanitizer.PlainText(d.Title),
			URL:     d.URL,
			Authors: make([]string, 0, len(d.Authors)),
		}
		for _, a := range d.Authors {
			p.Authors = append(p.Authors, a.Name)
		}
		if d.Abstract != nil {
			p.Abstract = c.sanitizer.PlainText(*d.Abstract)
		}
		if d.Year != nil {
			p.Year = *d.Year
		}
		if d.CitationCount != nil {
			p.Citations = *d.CitationCount
		}
		papers = append(papers, p)
	}
	return papers, nil
}

var _ PaperSearcher = (*SemanticScholarClient)(nil)
