package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/unwind/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralPerMinute int           // データ系API全般（req/min/user）
	ChatPerMinute    int           // /chat（req/min/user）
	CleanupInterval  time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralPerMinute: 120,
		ChatPerMinute:    20,
		CleanupInterval:  5 * time.Minute,
	}
}

// keyedLimiter はキーごとのトークンバケットを保持する。
type keyedLimiter struct {
	name  string
	limit rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newKeyedLimiter(name string, perMinute int) *keyedLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &keyedLimiter{
		name:    name,
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
		entries: make(map[string]*limiterEntry),
	}
}

func (k *keyedLimiter) allow(key string, now time.Time) bool {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = e
	}
	e.lastAccess = now
	k.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

func (k *keyedLimiter) evictIdle(now time.Time, ttl time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, e := range k.entries {
		if now.Sub(e.lastAccess) > ttl {
			delete(k.entries, key)
		}
	}
}

func (k *keyedLimiter) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// RateLimiter はユーザーごとのレート制限を管理する。
// 検証済みユーザーIDをキーとし、認証が無効な構成ではクライアントIPをキーとする。
type RateLimiter struct {
	config  RateLimiterConfig
	general *keyedLimiter
	chat    *keyedLimiter
	logger  *slog.Logger
	stopCh  chan struct{}
	once    sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成し、バックグラウンドのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		general: newKeyedLimiter("general", config.GeneralPerMinute),
		chat:    newKeyedLimiter("chat", config.ChatPerMinute),
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はデータ系API全般のレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general)
}

// ChatMiddleware は/chat専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) ChatMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.chat)
}

// GeneralLimiterCount は管理中の全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int { return rl.general.size() }

// ChatLimiterCount は管理中のチャットリミッターのエントリ数を返す。
func (rl *RateLimiter) ChatLimiterCount() int { return rl.chat.size() }

func (rl *RateLimiter) middleware(k *keyedLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			if !k.allow(key, time.Now()) {
				rl.logger.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("limit_type", k.name),
				)
				writeRateLimitResponse(w, k.limit)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			rl.cleanup(now)
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.evictIdle(now, ttl)
	rl.chat.evictIdle(now, ttl)
}

func rateLimitKey(r *http.Request) string {
	if userID, err := UserIDFromContext(r.Context()); err == nil {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// writeRateLimitResponse は429を書き込む。
// Retry-Afterには1トークンが補充されるまでの秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, limit rate.Limit) {
	retryAfter := int(math.Ceil(1.0 / float64(limit)))
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     model.ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	})
}
