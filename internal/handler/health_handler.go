package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout はヘルスチェック1回あたりの上限時間。
const healthCheckTimeout = 3 * time.Second

// HealthHandler はコンテナのヘルスチェック用ハンドラー。
type HealthHandler struct {
	check HealthCheckFunc
}

// NewHealthHandler はHealthHandlerを生成する。checkがnilの場合は常に正常を返す。
func NewHealthHandler(check HealthCheckFunc) *HealthHandler {
	return &HealthHandler{check: check}
}

// ServeHTTP はデータストアへの疎通を確認し、200または503を返す。
// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.check(ctx); err != nil {
			slog.Warn("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
