package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 補完プロバイダー名
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// DatastoreConfig は1つのデータストアへの接続設定を保持する。
// ServiceURLは特権ロール、PublicURLは行レベル制限付きロールの接続URL。
type DatastoreConfig struct {
	ServiceURL string
	PublicURL  string
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Datastores
	Primary   DatastoreConfig
	Secondary DatastoreConfig

	// Chat completion
	ChatProvider  string
	OpenRouterKey string
	OpenRouterURL string
	ChatModel     string
	GeminiKey     string
	GeminiModel   string
	AppReferer    string
	AppTitle      string

	// Research
	SemanticScholarKey string
	SemanticScholarURL string
	BookCatalogFeedURL string
	PaperCacheTTL      time.Duration

	// Auth
	FirebaseProjectID string

	// External calls
	UpstreamTimeout time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitChat    int

	// Worker
	SummaryBatchInterval time.Duration
	SummaryIdleAfter     time.Duration
	SummaryMaxPerCycle   int
	SummaryAPIInterval   time.Duration
	ReconcileInterval    time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigins []string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.Primary.ServiceURL = os.Getenv("PRIMARY_DATABASE_URL")
	if cfg.Primary.ServiceURL == "" {
		missing = append(missing, "PRIMARY_DATABASE_URL")
	}

	cfg.Secondary.ServiceURL = os.Getenv("SECONDARY_DATABASE_URL")
	if cfg.Secondary.ServiceURL == "" {
		missing = append(missing, "SECONDARY_DATABASE_URL")
	}

	cfg.ChatProvider = strings.ToLower(getEnvString("CHAT_PROVIDER", ProviderOpenRouter))
	cfg.OpenRouterKey = os.Getenv("OPENROUTER_API_KEY")
	cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")

	switch cfg.ChatProvider {
	case ProviderOpenRouter:
		if cfg.OpenRouterKey == "" {
			missing = append(missing, "OPENROUTER_API_KEY")
		}
	case ProviderGemini:
		if cfg.GeminiKey == "" {
			missing = append(missing, "GEMINI_API_KEY")
		}
	default:
		return nil, fmt.Errorf("unsupported CHAT_PROVIDER: %q (allowed: %s, %s)", cfg.ChatProvider, ProviderOpenRouter, ProviderGemini)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.Primary.PublicURL = getEnvString("PRIMARY_DATABASE_PUBLIC_URL", "")
	cfg.Secondary.PublicURL = getEnvString("SECONDARY_DATABASE_PUBLIC_URL", "")
	cfg.OpenRouterURL = getEnvString("OPENROUTER_URL", "https://openrouter.ai/api/v1/chat/completions")
	cfg.ChatModel = getEnvString("CHAT_MODEL", "anthropic/claude-3-haiku")
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-1.5-flash")
	cfg.AppReferer = getEnvString("APP_REFERER", "https://unwind-therapy.vercel.app")
	cfg.AppTitle = getEnvString("APP_TITLE", "Unwind Therapy App")
	cfg.SemanticScholarKey = getEnvString("SEMANTIC_SCHOLAR_API_KEY", "")
	cfg.SemanticScholarURL = getEnvString("SEMANTIC_SCHOLAR_URL", "https://api.semanticscholar.org/graph/v1/paper/search")
	cfg.BookCatalogFeedURL = getEnvString("BOOK_CATALOG_FEED_URL", "")
	cfg.PaperCacheTTL = getEnvDuration("PAPER_CACHE_TTL", 10*time.Minute)
	cfg.FirebaseProjectID = getEnvString("FIREBASE_PROJECT_ID", "")
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 20*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitChat = getEnvInt("RATE_LIMIT_CHAT", 20)
	cfg.SummaryBatchInterval = getEnvDuration("SUMMARY_BATCH_INTERVAL", 10*time.Minute)
	cfg.SummaryIdleAfter = getEnvDuration("SUMMARY_IDLE_AFTER", 30*time.Minute)
	cfg.SummaryMaxPerCycle = getEnvInt("SUMMARY_MAX_PER_CYCLE", 20)
	cfg.SummaryAPIInterval = getEnvDuration("SUMMARY_API_INTERVAL", 2*time.Second)
	cfg.ReconcileInterval = getEnvDuration("RECONCILE_INTERVAL", 15*time.Minute)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"})

	return cfg, nil
}

// AuthEnabled はFirebase IDトークン検証が有効かどうかを返す。
func (c *Config) AuthEnabled() bool {
	return c.FirebaseProjectID != ""
}

func getEnvString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
