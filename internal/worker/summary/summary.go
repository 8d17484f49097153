// Package summary は対話セッションの事後要約を作成するバッチジョブを提供する。
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/unwind/internal/chat"
	"github.com/hitoshi/unwind/internal/metrics"
	"github.com/hitoshi/unwind/internal/model"
)

// summaryPrompt は要約生成時のシステムプロンプト。
const summaryPrompt = "You summarize conversations between a user and a supportive wellness companion. " +
	"Write 2-3 sentences in the second person describing the main topics and any coping steps discussed. " +
	"Do not add advice that was not in the conversation."

// maxTranscriptRunes は要約に渡す記録の最大文字数。超過分は古い発言から切り捨てる。
const maxTranscriptRunes = 8000

// SessionStore はジョブが必要とするセッション永続化の操作。
type SessionStore interface {
	ListPendingSummary(ctx context.Context, idleBefore time.Time, minMessages, limit int) ([]*model.ChatSession, error)
	ListMessages(ctx context.Context, sessionID string) ([]*model.Message, error)
	UpdateSummary(ctx context.Context, id, summary string, asOf time.Time) error
}

// BatchConfig はバッチジョブの設定パラメータ。
type BatchConfig struct {
	// BatchInterval はバッチジョブの実行間隔（デフォルト: 10分）。
	BatchInterval time.Duration
	// IdleAfter は最終更新からこの時間が経過したセッションを要約対象とする（デフォルト: 30分）。
	IdleAfter time.Duration
	// MinMessages は要約対象とする最小メッセージ数（デフォルト: 2）。
	MinMessages int
	// APIInterval は補完API呼び出しの最低間隔（デフォルト: 2秒）。
	APIInterval time.Duration
	// MaxCallsPerCycle は1サイクルあたりの最大API呼び出し回数（デフォルト: 20）。
	MaxCallsPerCycle int
}

// DefaultBatchConfig はデフォルトのバッチジョブ設定を返す。
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchInterval:    10 * time.Minute,
		IdleAfter:        30 * time.Minute,
		MinMessages:      2,
		APIInterval:      2 * time.Second,
		MaxCallsPerCycle: 20,
	}
}

// BatchJob は要約未作成のセッションに要約を設定するジョブ。
// 危機対応中のセッションは対象外とする。
type BatchJob struct {
	sessions  SessionStore
	completer chat.Completer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	config    BatchConfig
	now       func() time.Time

	consecutiveErrors int
	backoffUntil      time.Time
}

// NewBatchJob はBatchJobの新しいインスタンスを生成する。
func NewBatchJob(
	sessions SessionStore,
	completer chat.Completer,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	config BatchConfig,
) *BatchJob {
	return &BatchJob{
		sessions:  sessions,
		completer: completer,
		metrics:   mc,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// Start はバッチジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (b *BatchJob) Start(ctx context.Context) {
	ticker := time.NewTicker(b.config.BatchInterval)
	defer ticker.Stop()

	b.logger.Info("要約バッチジョブを開始しました",
		slog.Duration("batch_interval", b.config.BatchInterval),
		slog.Duration("idle_after", b.config.IdleAfter),
		slog.Int("max_calls_per_cycle", b.config.MaxCallsPerCycle),
	)

	// 起動直後に1回実行
	b.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("要約バッチジョブを停止しました")
			return
		case <-ticker.C:
			b.runLogged(ctx)
		}
	}
}

func (b *BatchJob) runLogged(ctx context.Context) {
	if _, err := b.RunOnce(ctx); err != nil && ctx.Err() == nil {
		b.logger.Error("要約バッチサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は1回のバッチサイクルを実行し、要約を保存したセッション数を返す。
func (b *BatchJob) RunOnce(ctx context.Context) (int, error) {
	start := b.now()

	// バックオフ中の場合はスキップ
	if !b.backoffUntil.IsZero() && start.Before(b.backoffUntil) {
		b.logger.Info("要約バッチジョブはバックオフ中のためスキップします",
			slog.Time("backoff_until", b.backoffUntil),
		)
		return 0, nil
	}

	pending, err := b.sessions.ListPendingSummary(ctx, start.Add(-b.config.IdleAfter), b.config.MinMessages, b.config.MaxCallsPerCycle)
	if err != nil {
		return 0, fmt.Errorf("要約対象セッションの取得に失敗しました: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var apiCallCount, written int
	var hadError bool

	for _, session := range pending {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
		if apiCallCount >= b.config.MaxCallsPerCycle {
			break
		}

		// API呼び出しインターバル（初回は待たない）
		if apiCallCount > 0 && b.config.APIInterval > 0 {
			select {
			case <-ctx.Done():
				return written, ctx.Err()
			case <-time.After(b.config.APIInterval):
			}
		}

		messages, err := b.sessions.ListMessages(ctx, session.ID)
		if err != nil {
			b.logger.Error("セッションのメッセージ取得に失敗しました",
				slog.String("store", model.StoreSecondary),
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		transcript := buildTranscript(messages)
		if transcript == "" {
			continue
		}

		apiCallCount++
		callStart := b.now()
		summary, err := b.completer.Complete(ctx, summaryPrompt, []model.ChatTurn{{Role: model.RoleUser, Content: transcript}})
		elapsed := b.now().Sub(callStart)
		if err == nil && strings.TrimSpace(summary) == "" {
			err = fmt.Errorf("empty summary")
		}
		if err != nil {
			b.metrics.RecordUpstreamCall(b.completer.Name(), metrics.OutcomeFailure, elapsed)
			b.logger.Error("要約の生成に失敗しました",
				slog.String("service", b.completer.Name()),
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
			hadError = true
			b.consecutiveErrors++
			if backoff := calculateErrorBackoff(b.consecutiveErrors); backoff > 0 {
				b.backoffUntil = b.now().Add(backoff)
				b.logger.Warn("連続エラーによりバックオフを適用します",
					slog.Int("consecutive_errors", b.consecutiveErrors),
					slog.Duration("backoff_duration", backoff),
				)
				break
			}
			continue
		}
		b.metrics.RecordUpstreamCall(b.completer.Name(), metrics.OutcomeSuccess, elapsed)

		if err := b.sessions.UpdateSummary(ctx, session.ID, strings.TrimSpace(summary), session.UpdatedAt); err != nil {
			b.logger.Error("要約の保存に失敗しました",
				slog.String("store", model.StoreSecondary),
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		written++
	}

	// エラーがなければ連続エラーカウントをリセット
	if !hadError {
		b.consecutiveErrors = 0
		b.backoffUntil = time.Time{}
	}

	b.metrics.RecordSummariesWritten(written)
	b.logger.Info("要約バッチサイクルが完了しました",
		slog.Int("api_call_count", apiCallCount),
		slog.Int("summaries_written", written),
		slog.Int("target_sessions", len(pending)),
		slog.Float64("duration_ms", float64(b.now().Sub(start).Milliseconds())),
	)
	return written, nil
}

// buildTranscript はユーザーとアシスタントの発言を1つのテキストにまとめる。
func buildTranscript(messages []*model.Message) string {
	var lines []string
	for _, m := range messages {
		var speaker string
		switch m.Role {
		case model.RoleUser:
			speaker = "User"
		case model.RoleAssistant:
			speaker = "Companion"
		default:
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		lines = append(lines, speaker+": "+content)
	}

	transcript := strings.Join(lines, "\n")
	if r := []rune(transcript); len(r) > maxTranscriptRunes {
		transcript = string(r[len(r)-maxTranscriptRunes:])
	}
	return transcript
}

// calculateErrorBackoff は連続エラー回数に基づくバックオフ時間を計算する。
// 3回連続: 30分、5回連続: 1時間、10回連続: 6時間。
func calculateErrorBackoff(consecutiveErrors int) time.Duration {
	switch {
	case consecutiveErrors >= 10:
		return 6 * time.Hour
	case consecutiveErrors >= 5:
		return 1 * time.Hour
	case consecutiveErrors >= 3:
		return 30 * time.Minute
	default:
		return 0
	}
}
