// Package chat は対話セッションと補完プロバイダーとの連携を提供する。
package chat

import (
	"context"

	"github.com/hitoshi/unwind/internal/model"
)

// 補完パラメータ（固定値）
const (
	Temperature     = 0.7
	MaxOutputTokens = 500
)

// SystemPrompt は対話に常に先頭付与する指示。
const SystemPrompt = `You are a compassionate AI therapy assistant for the Unwind app.
Your role is to provide emotional support, active listening, and gentle guidance.
You are not a replacement for professional therapy but a supportive companion.

Guidelines:
- Be empathetic and non-judgmental
- Ask thoughtful follow-up questions
- Validate the user's feelings
- Offer coping strategies when appropriate
- Encourage professional help for serious issues
- Keep responses concise but meaningful
- Never provide medical diagnoses or prescriptions`

// Completer はチャット補完プロバイダーのインターフェース。
// systemは先頭の指示、turnsは時系列順の発言で最後がユーザー発言となる。
// 呼び出し失敗や応答の欠落はmodel.UpstreamErrorとして返す。
type Completer interface {
	Name() string
	Complete(ctx context.Context, system string, turns []model.ChatTurn) (string, error)
}
