package middleware

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/storefront-session/internal/activity"
)

// SignalHeader carries the interaction that triggered a UI request.
const SignalHeader = "X-UI-Signal"

// Emitter receives interaction signals.
type Emitter interface {
	Emit(signal activity.Signal)
}

// Activity forwards the signal named in SignalHeader before handling the request.
// Requests without the header, or with an unknown signal, pass through untouched.
func Activity(emitter Emitter, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if raw := ctx.Request.Header.Peek(SignalHeader); len(raw) > 0 {
				if signal, ok := activity.ParseSignal(string(raw)); ok {
					emitter.Emit(signal)
				} else {
					logger.Debug("ignoring unknown ui signal", zap.ByteString("signal", raw))
				}
			}
			next(ctx)
		}
	}
}
