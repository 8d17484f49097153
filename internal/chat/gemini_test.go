package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"

	"github.com/hitoshi/unwind/internal/model"
)

func TestToGeminiHistory_MapsRoles(t *testing.T) {
	history := toGeminiHistory([]model.ChatTurn{
		{Role: model.RoleUser, Content: "hello"},
		{Role: model.RoleAssistant, Content: "hi there"},
	})

	if len(history) != 2 {
		t.Fatalf("len = %d, want 2", len(history))
	}
	if history[0].Role != "user" {
		t.Errorf("history[0].Role = %q, want user", history[0].Role)
	}
	if history[1].Role != "model" {
		t.Errorf("history[1].Role = %q, want model", history[1].Role)
	}
	if text, ok := history[1].Parts[0].(genai.Text); !ok || string(text) != "hi there" {
		t.Errorf("history[1].Parts[0] = %#v", history[1].Parts[0])
	}
}

func TestToGeminiHistory_Empty(t *testing.T) {
	if got := toGeminiHistory(nil); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func textResponse(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestGeminiClient_Complete_ReturnsText(t *testing.T) {
	var gotSystem string
	var gotHistory []*genai.Content
	var gotLast genai.Part
	g := &GeminiClient{
		timeout: time.Second,
		send: func(ctx context.Context, system string, history []*genai.Content, last genai.Part) (*genai.GenerateContentResponse, error) {
			gotSystem, gotHistory, gotLast = system, history, last
			return textResponse(genai.Text("  take a slow breath "), genai.Text("with me")), nil
		},
	}

	got, err := g.Complete(context.Background(), "be kind", []model.ChatTurn{
		{Role: model.RoleUser, Content: "hello"},
		{Role: model.RoleAssistant, Content: "hi"},
		{Role: model.RoleUser, Content: "I feel tense"},
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "take a slow breath with me" {
		t.Errorf("reply = %q", got)
	}
	if gotSystem != "be kind" {
		t.Errorf("system = %q, want %q", gotSystem, "be kind")
	}
	if len(gotHistory) != 2 {
		t.Errorf("history len = %d, want 2", len(gotHistory))
	}
	if text, ok := gotLast.(genai.Text); !ok || string(text) != "I feel tense" {
		t.Errorf("last = %#v", gotLast)
	}
}

func TestGeminiClient_Complete_DeadlineExceeded(t *testing.T) {
	g := &GeminiClient{
		timeout: 20 * time.Millisecond,
		send: func(ctx context.Context, system string, history []*genai.Content, last genai.Part) (*genai.GenerateContentResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	done := make(chan error, 1)
	go func() {
		_, err := g.Complete(context.Background(), "", []model.ChatTurn{{Role: model.RoleUser, Content: "hello"}})
		done <- err
	}()

	select {
	case err := <-done:
		var upErr *model.UpstreamError
		if !errors.As(err, &upErr) {
			t.Fatalf("err = %v, want UpstreamError", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Complete did not return after its timeout")
	}
}

func TestGeminiClient_Complete_NoCandidates(t *testing.T) {
	g := &GeminiClient{
		timeout: time.Second,
		send: func(ctx context.Context, system string, history []*genai.Content, last genai.Part) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{}, nil
		},
	}

	_, err := g.Complete(context.Background(), "", []model.ChatTurn{{Role: model.RoleUser, Content: "hello"}})
	var upErr *model.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
}

func TestGeminiClient_Complete_NoTurns(t *testing.T) {
	g := &GeminiClient{timeout: time.Second}

	_, err := g.Complete(context.Background(), "", nil)
	var upErr *model.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
}
