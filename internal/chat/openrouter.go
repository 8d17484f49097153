package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/unwind/internal/model"
)

const openRouterService = "openrouter"

// OpenRouterConfig はOpenRouterクライアントの設定。
type OpenRouterConfig struct {
	URL     string
	APIKey  string
	Model   string
	Referer string
	Title   string
}

// OpenRouterClient はOpenRouterのchat completions APIクライアント。
type OpenRouterClient struct {
	config     OpenRouterConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenRouterClient はOpenRouterClientを生成する。
// httpClientのTimeoutが外部呼び出しの上限時間となる。
func NewOpenRouterClient(config OpenRouterConfig, httpClient *http.Client, logger *slog.Logger) *OpenRouterClient {
	return &OpenRouterClient{config: config, httpClient: httpClient, logger: logger}
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
}

type openRouterResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Name はプロバイダー名を返す。
func (c *OpenRouterClient) Name() string { return openRouterService }

// Complete はメッセージ列を送信し、最初の候補の本文を返す。
// choices[0].message.contentが無い応答はUpstreamErrorとする。
func (c *OpenRouterClient) Complete(ctx context.Context, system string, turns []model.ChatTurn) (string, error) {
	messages := make([]openRouterMessage, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openRouterMessage{Role: string(model.RoleSystem), Content: system})
	}
	for _, t := range turns {
		messages = append(messages, openRouterMessage{Role: string(t.Role), Content: t.Content})
	}

	payload, err := json.Marshal(openRouterRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: Temperature,
		MaxTokens:   MaxOutputTokens,
	})
	if err != nil {
		return "", model.NewUpstreamError(openRouterService, fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return "", model.NewUpstreamError(openRouterService, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.config.Referer != "" {
		req.Header.Set("HTTP-Referer", c.config.Referer)
	}
	if c.config.Title != "" {
		req.Header.Set("X-Title", c.config.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("completion request failed",
			slog.String("service", openRouterService),
			slog.String("error", err.Error()),
		)
		return "", model.NewUpstreamError(openRouterService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", model.NewUpstreamError(openRouterService, fmt.Errorf("failed to read response: %w", err))
	}

	var parsed openRouterResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		c.logger.Error("completion provider returned error status",
			slog.String("service", openRouterService),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", msg),
		)
		return "", model.NewUpstreamError(openRouterService, fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}
	if decodeErr != nil {
		return "", model.NewUpstreamError(openRouterService, fmt.Errorf("failed to decode response: %w", decodeErr))
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", model.NewUpstreamError(openRouterService, errors.New(parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil || parsed.Choices[0].Message.Content == nil {
		return "", model.NewUpstreamError(openRouterService, errors.New("response has no choices[0].message.content"))
	}

	content := strings.TrimSpace(*parsed.Choices[0].Message.Content)
	if content == "" {
		return "", model.NewUpstreamError(openRouterService, errors.New("empty completion"))
	}
	return content, nil
}

// compile-time interface check
var _ Completer = (*OpenRouterClient)(nil)
