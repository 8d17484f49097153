package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/unwind/internal/metrics"
	"github.com/hitoshi/unwind/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier      middleware.TokenVerifier // nilの場合は認証を行わない
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	Metrics            metrics.MetricsCollector
	MetricsHandler     http.Handler

	// ドメインサービス
	IdentityService IdentityServiceInterface
	ChatService     ChatServiceInterface
	JournalService  JournalServiceInterface
	ResearchService ResearchServiceInterface
	HistoryService  HistoryServiceInterface
	UserService     UserServiceInterface

	Stores map[string]Pinger
	Logger *slog.Logger
}

func (d *RouterDeps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → Metrics → CORS → SecurityHeaders
//	  → FirebaseAuth → RateLimit(General) [→ RateLimit(Chat)]
//
// /healthと/metricsは認証とレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.logger()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(metrics.NewStatusMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	identityHandler := NewIdentityHandler(deps.IdentityService)
	chatHandler := NewChatHandler(deps.ChatService)
	journalHandler := NewJournalHandler(deps.JournalService)
	researchHandler := NewResearchHandler(deps.ResearchService)
	historyHandler := NewHistoryHandler(deps.HistoryService)
	userHandler := NewUserHandler(deps.UserService)
	healthHandler := NewHealthHandler(deps.Stores)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: FirebaseAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewFirebaseAuthMiddleware(deps.TokenVerifier, logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/auth/sync-user", identityHandler.SyncUser)

		// 対話（専用レート制限を追加）
		r.With(deps.RateLimiter.ChatMiddleware()).Post("/chat", chatHandler.Chat)

		// 日記
		r.Route("/journals", func(r chi.Router) {
			r.Post("/", journalHandler.CreateJournal)
			r.Get("/", journalHandler.ListJournals)
			r.Get("/mood-data", journalHandler.MoodData)
			r.Put("/{id}", journalHandler.UpdateJournal)
			r.Delete("/{id}", journalHandler.DeleteJournal)
		})

		// 論文・書籍検索
		r.Post("/papers/search", researchHandler.SearchPapers)
		r.Post("/books/search", researchHandler.SearchBooks)
		r.Post("/research/search", researchHandler.Search)

		// セッション履歴
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", historyHandler.ListSessions)
			r.Post("/pdf", historyHandler.ExportPDF)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", historyHandler.GetSession)
				r.Get("/pdf", historyHandler.DownloadPDF)
				r.Post("/acknowledge", chatHandler.Acknowledge)
			})
		})

		// ブックマーク
		r.Route("/bookmarks", func(r chi.Router) {
			r.Post("/", historyHandler.AddBookmark)
			r.Get("/", historyHandler.ListBookmarks)
			r.Delete("/{id}", historyHandler.DeleteBookmark)
		})

		// アカウント管理
		r.Route("/users", func(r chi.Router) {
			r.Put("/profile", userHandler.UpdateProfile)
			r.Delete("/", userHandler.DeleteAccount)
			r.Get("/export", userHandler.ExportData)
		})

		// 旧クライアント互換のエイリアス
		r.Route("/api/users", func(r chi.Router) {
			r.Put("/update", userHandler.UpdateProfile)
			r.Post("/update", userHandler.UpdateProfile)
			r.Delete("/delete", userHandler.DeleteAccount)
			r.Post("/delete", userHandler.DeleteAccount)
		})
	})

	return r
}
