package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger は疎通確認可能なデータストア。
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler は両データストアの疎通を確認するヘルスチェックハンドラー。
type HealthHandler struct {
	stores  map[string]Pinger
	timeout time.Duration
}

// NewHealthHandler はHealthHandlerを生成する。storesのキーはログに出力するストア名。
func NewHealthHandler(stores map[string]Pinger) *HealthHandler {
	return &HealthHandler{stores: stores, timeout: 3 * time.Second}
}

type healthResponse struct {
	Status string            `json:"status"`
	Stores map[string]string `json:"stores,omitempty"`
}

// Health は全データストアに疎通できれば200、いずれかに失敗すれば503を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	for name, store := range h.stores {
		if err := store.Ping(ctx); err != nil {
			slog.Error("health check failed",
				slog.String("store", name),
				slog.String("error", err.Error()),
			)
			if resp.Stores == nil {
				resp.Stores = make(map[string]string)
			}
			resp.Stores[name] = "unreachable"
			resp.Status = "unavailable"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
