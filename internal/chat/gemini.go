package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/hitoshi/unwind/internal/model"
)

const (
	geminiService        = "gemini"
	defaultGeminiTimeout = 20 * time.Second
)

// geminiSendFunc は履歴と最後の発言をGeminiへ送信する。
type geminiSendFunc func(ctx context.Context, system string, history []*genai.Content, last genai.Part) (*genai.GenerateContentResponse, error)

// GeminiClient はGoogle Geminiを補完プロバイダーとして使うCompleter。
// 1回の呼び出しはtimeoutで打ち切られる。
type GeminiClient struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
	send      geminiSendFunc
}

// NewGeminiClient はGeminiClientを生成する。timeoutが0以下なら20秒を使う。
func NewGeminiClient(ctx context.Context, apiKey, modelName string, timeout time.Duration) (*GeminiClient, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	if timeout <= 0 {
		timeout = defaultGeminiTimeout
	}
	g := &GeminiClient{client: cl, modelName: modelName, timeout: timeout}
	g.send = g.sendMessage
	return g, nil
}

// Close はクライアントを閉じる。
func (g *GeminiClient) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Name はプロバイダー名を返す。
func (g *GeminiClient) Name() string { return geminiService }

// Complete は直前までの発言を履歴として渡し、最後の発言を送信する。
func (g *GeminiClient) Complete(ctx context.Context, system string, turns []model.ChatTurn) (string, error) {
	if len(turns) == 0 {
		return "", model.NewUpstreamError(geminiService, errors.New("no message to send"))
	}

	timeout := g.timeout
	if timeout <= 0 {
		timeout = defaultGeminiTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := g.send(ctx, system, toGeminiHistory(turns[:len(turns)-1]), genai.Text(turns[len(turns)-1].Content))
	if err != nil {
		return "", model.NewUpstreamError(geminiService, err)
	}
	if resp == nil {
		return "", model.NewUpstreamError(geminiService, errors.New("empty response"))
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", model.NewUpstreamError(geminiService, errors.New("response has no candidates"))
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return "", model.NewUpstreamError(geminiService, errors.New("empty completion"))
	}
	return content, nil
}

func (g *GeminiClient) sendMessage(ctx context.Context, system string, history []*genai.Content, last genai.Part) (*genai.GenerateContentResponse, error) {
	m := g.client.GenerativeModel(g.modelName)
	m.SetTemperature(Temperature)
	m.SetMaxOutputTokens(MaxOutputTokens)
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := m.StartChat()
	cs.History = history
	return cs.SendMessage(ctx, last)
}

// toGeminiHistory は発言をGeminiの履歴形式に変換する。assistantはmodelロールとなる。
func toGeminiHistory(turns []model.ChatTurn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == model.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Content)},
		})
	}
	return history
}

// compile-time interface check
var _ Completer = (*GeminiClient)(nil)
