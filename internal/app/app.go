package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/unwind/internal/auth"
	"github.com/hitoshi/unwind/internal/chat"
	"github.com/hitoshi/unwind/internal/config"
	"github.com/hitoshi/unwind/internal/database"
	"github.com/hitoshi/unwind/internal/handler"
	"github.com/hitoshi/unwind/internal/history"
	"github.com/hitoshi/unwind/internal/identity"
	"github.com/hitoshi/unwind/internal/journal"
	"github.com/hitoshi/unwind/internal/logger"
	"github.com/hitoshi/unwind/internal/metrics"
	"github.com/hitoshi/unwind/internal/middleware"
	"github.com/hitoshi/unwind/internal/model"
	"github.com/hitoshi/unwind/internal/repository"
	"github.com/hitoshi/unwind/internal/research"
	"github.com/hitoshi/unwind/internal/security"
	"github.com/hitoshi/unwind/internal/user"
	"github.com/hitoshi/unwind/internal/worker/reconcile"
	"github.com/hitoshi/unwind/internal/worker/summary"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// .envでLOG_LEVELが指定された場合に備えて再設定する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("chat_provider", cfg.ChatProvider),
		slog.Bool("auth_enabled", cfg.AuthEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openStores はプライマリとセカンダリの接続プールを開き、疎通を確認する。
func openStores(ctx context.Context, cfg *config.Config) (primary, secondary *database.Store, err error) {
	primary, err = database.OpenStore(model.StorePrimary, cfg.Primary.ServiceURL, cfg.Primary.PublicURL)
	if err != nil {
		return nil, nil, err
	}
	secondary, err = database.OpenStore(model.StoreSecondary, cfg.Secondary.ServiceURL, cfg.Secondary.PublicURL)
	if err != nil {
		primary.Close()
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, s := range []*database.Store{primary, secondary} {
		if err := s.Ping(pingCtx); err != nil {
			primary.Close()
			secondary.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	}

	slog.Info("database connections established")
	return primary, secondary, nil
}

// newCompleter はCHAT_PROVIDERに応じた補完クライアントを返す。
// 戻り値のcloseは呼び出し元が終了時に実行する。
func newCompleter(ctx context.Context, cfg *config.Config) (chat.Completer, func(), error) {
	switch cfg.ChatProvider {
	case config.ProviderGemini:
		client, err := chat.NewGeminiClient(ctx, cfg.GeminiKey, cfg.GeminiModel, cfg.UpstreamTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		return client, func() { _ = client.Close() }, nil
	default:
		client := chat.NewOpenRouterClient(chat.OpenRouterConfig{
			URL:     cfg.OpenRouterURL,
			APIKey:  cfg.OpenRouterKey,
			Model:   cfg.ChatModel,
			Referer: cfg.AppReferer,
			Title:   cfg.AppTitle,
		}, &http.Client{Timeout: cfg.UpstreamTimeout}, slog.Default())
		return client, func() {}, nil
	}
}

// newBookCatalog はBOOK_CATALOG_FEED_URLが設定されていればフィードカタログを、
// 未設定なら組み込みカタログを返す。
func newBookCatalog(cfg *config.Config, sanitizer security.TextSanitizer) (research.BookSearcher, error) {
	if cfg.BookCatalogFeedURL == "" {
		return research.StaticCatalog{}, nil
	}
	if err := security.ValidateOutboundURL(cfg.BookCatalogFeedURL); err != nil {
		return nil, fmt.Errorf("invalid BOOK_CATALOG_FEED_URL: %w", err)
	}
	return research.NewFeedCatalog(
		cfg.BookCatalogFeedURL,
		security.NewOutboundClient(cfg.UpstreamTimeout),
		sanitizer,
		slog.Default(),
	), nil
}

// newMetrics はランタイム情報を含むPrometheusレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	primary, secondary, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer primary.Close()
	defer secondary.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(primary.Service, primary.Public)
	stubRepo := repository.NewPostgresUserStubRepo(secondary.Service)
	journalRepo := repository.NewPostgresJournalRepo(secondary.Service, secondary.Public)
	sessionRepo := repository.NewPostgresChatSessionRepo(secondary.Service, secondary.Public)
	bookmarkRepo := repository.NewPostgresBookmarkRepo(secondary.Service, secondary.Public)

	// 3. メトリクス
	reg, collector := newMetrics()

	// 4. 外部クライアント
	completer, closeCompleter, err := newCompleter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCompleter()

	sanitizer := security.NewTextSanitizer()
	papers := research.NewSemanticScholarClient(
		cfg.SemanticScholarURL,
		cfg.SemanticScholarKey,
		&http.Client{Timeout: cfg.UpstreamTimeout},
		sanitizer,
		log,
	)
	books, err := newBookCatalog(cfg, sanitizer)
	if err != nil {
		return err
	}

	// 5. ドメインサービスの初期化
	identityService := identity.NewService(userRepo, stubRepo, collector, log)
	chatService := chat.NewService(sessionRepo, completer, collector, log)
	journalService := journal.NewService(journalRepo, journal.KeywordAnalyzer{}, log)
	researchService := research.NewService(papers, books, research.RuleSimplifier{}, cfg.PaperCacheTTL, collector, log)
	historyService := history.NewService(sessionRepo, bookmarkRepo, log)
	userService := user.NewService(userRepo, stubRepo, journalRepo, sessionRepo, bookmarkRepo, log)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralPerMinute: cfg.RateLimitGeneral,
		ChatPerMinute:    cfg.RateLimitChat,
		CleanupInterval:  middleware.DefaultRateLimiterConfig().CleanupInterval,
	}, log)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rateLimiter,
		Metrics:            collector,
		MetricsHandler:     metrics.Handler(reg),

		IdentityService: identityService,
		ChatService:     chatService,
		JournalService:  journalService,
		ResearchService: researchService,
		HistoryService:  historyService,
		UserService:     userService,

		Stores: map[string]handler.Pinger{
			model.StorePrimary:   primary,
			model.StoreSecondary: secondary,
		},
		Logger: log,
	}
	if cfg.AuthEnabled() {
		deps.TokenVerifier = auth.NewFirebaseVerifier(cfg.FirebaseProjectID, &http.Client{Timeout: cfg.UpstreamTimeout}, log)
	} else {
		log.Warn("FIREBASE_PROJECT_ID is not set; requests are not authenticated")
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// セッション要約バッチとユーザースタブ整合ジョブをバックグラウンドで実行し、
// ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	primary, secondary, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer primary.Close()
	defer secondary.Close()

	userRepo := repository.NewPostgresUserRepo(primary.Service, primary.Public)
	stubRepo := repository.NewPostgresUserStubRepo(secondary.Service)
	sessionRepo := repository.NewPostgresChatSessionRepo(secondary.Service, secondary.Public)

	// ワーカーは/metricsを公開しないため、値は破棄する
	_, collector := newMetrics()

	completer, closeCompleter, err := newCompleter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCompleter()

	batchConfig := summary.DefaultBatchConfig()
	batchConfig.BatchInterval = cfg.SummaryBatchInterval
	batchConfig.IdleAfter = cfg.SummaryIdleAfter
	batchConfig.MaxCallsPerCycle = cfg.SummaryMaxPerCycle
	batchConfig.APIInterval = cfg.SummaryAPIInterval
	summaryJob := summary.NewBatchJob(sessionRepo, completer, collector, log, batchConfig)

	reconcileJob := reconcile.NewJob(userRepo, stubRepo, collector, log)
	reconcileJob.Interval = cfg.ReconcileInterval

	slog.Info("worker starting",
		slog.Duration("summary_interval", batchConfig.BatchInterval),
		slog.Duration("reconcile_interval", reconcileJob.Interval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summaryJob.Start(gctx)
		return nil
	})
	g.Go(func() error {
		reconcileJob.Start(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はプライマリとセカンダリのマイグレーションを順に実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	targets := []struct {
		schema database.Schema
		url    string
	}{
		{database.SchemaPrimary, cfg.Primary.ServiceURL},
		{database.SchemaSecondary, cfg.Secondary.ServiceURL},
	}

	for _, t := range targets {
		slog.Info("running database migrations",
			slog.String("schema", string(t.schema)),
			slog.String("database_url", maskDatabaseURL(t.url)),
		)
		if err := database.RunMigrations(t.schema, t.url); err != nil {
			return fmt.Errorf("%s migration failed: %w", t.schema, err)
		}
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できないURLは全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
