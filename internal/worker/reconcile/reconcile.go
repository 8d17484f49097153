// Package reconcile はプライマリストアのユーザーに対応するセカンダリストアの
// スタブを補完するジョブを提供する。
// サインイン時の同期がセカンダリへの書き込みで失敗した場合の不整合を解消する。
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/unwind/internal/metrics"
	"github.com/hitoshi/unwind/internal/model"
)

// UserLister はプライマリストアのユーザーIDをキーセットで走査する。
type UserLister interface {
	ListFirebaseUIDs(ctx context.Context, after string, limit int) ([]string, error)
}

// StubEnsurer はセカンダリストアのスタブを作成する。
type StubEnsurer interface {
	EnsureMany(ctx context.Context, uids []string) (int, error)
}

// Job はスタブ整合ジョブ。
// 冪等: スタブはinsert-if-absentで作成し、既存のスタブは変更しない。
type Job struct {
	users    UserLister
	stubs    StubEnsurer
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	PageSize int           // 1回の走査で扱うユーザー数（デフォルト: 500）
	Interval time.Duration // 定期実行の間隔（デフォルト: 15分）
}

// NewJob は新しいJobを生成する。
func NewJob(users UserLister, stubs StubEnsurer, mc metrics.MetricsCollector, logger *slog.Logger) *Job {
	return &Job{
		users:    users,
		stubs:    stubs,
		metrics:  mc,
		logger:   logger,
		PageSize: 500,
		Interval: 15 * time.Minute,
	}
}

// Start はジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	j.logger.Info("スタブ整合ジョブを開始しました", slog.Duration("interval", j.Interval))
	j.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("スタブ整合ジョブを停止しました")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("スタブ整合ジョブの実行に失敗しました", slog.String("error", err.Error()))
	}
}

// Run は全ユーザーを走査し、欠けているスタブを作成した件数を返す。
// 途中で失敗した場合はそれまでに作成した件数とエラーを返す。
func (j *Job) Run(ctx context.Context) (int, error) {
	start := time.Now()

	var after string
	var scanned, repaired int
	for {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}

		uids, err := j.users.ListFirebaseUIDs(ctx, after, j.PageSize)
		if err != nil {
			j.logger.Error("ユーザーIDの取得に失敗しました",
				slog.String("store", model.StorePrimary),
				slog.String("after", after),
				slog.String("error", err.Error()),
			)
			return repaired, fmt.Errorf("ユーザーIDの取得に失敗: %w", err)
		}
		if len(uids) == 0 {
			break
		}

		created, err := j.stubs.EnsureMany(ctx, uids)
		if err != nil {
			j.logger.Error("スタブの作成に失敗しました",
				slog.String("store", model.StoreSecondary),
				slog.Int("batch_size", len(uids)),
				slog.String("error", err.Error()),
			)
			return repaired, fmt.Errorf("スタブの作成に失敗: %w", err)
		}
		if created > 0 {
			j.metrics.RecordStubsRepaired(created)
		}

		scanned += len(uids)
		repaired += created
		after = uids[len(uids)-1]
		if len(uids) < j.PageSize {
			break
		}
	}

	level := slog.LevelInfo
	if repaired > 0 {
		level = slog.LevelWarn
	}
	j.logger.Log(ctx, level, "スタブ整合ジョブが完了しました",
		slog.Int("scanned_users", scanned),
		slog.Int("repaired_stubs", repaired),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return repaired, nil
}
