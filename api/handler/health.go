package handler

import (
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/storefront-session/api/transport"
	"github.com/fastygo/storefront-session/internal/infrastructure/monitor"
	"github.com/fastygo/storefront-session/pkg/httpcontext"
)

// StatusSource reports dependency health.
type StatusSource interface {
	GetStatus() monitor.Status
}

type HealthHandler struct {
	baseHandler
	monitor StatusSource
	driver  string
}

func NewHealthHandler(mon StatusSource, driver string, adapter *httpcontext.Adapter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		monitor:     mon,
		driver:      driver,
	}
}

// @Summary Health check
// @Tags health
// @Router /health [get]
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	status := h.monitor.GetStatus()
	payload := map[string]any{
		"timestamp":      time.Now().UTC(),
		"durable_driver": h.driver,
		"services":       status.Components,
		"last_check":     status.LastCheck,
	}

	if status.Healthy() {
		h.respondSuccess(ctx, http.StatusOK, payload)
		return
	}
	h.respondJSON(ctx, http.StatusServiceUnavailable, transport.Envelope{
		Status: "error",
		Code:   "DEGRADED",
		Error:  transport.ErrorBody{Message: "dependencies unhealthy"},
		Data:   payload,
	})
}
