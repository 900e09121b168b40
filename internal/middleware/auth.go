package middleware

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/storefront-session/api/transport"
	"github.com/fastygo/storefront-session/domain"
)

// SnapshotSource publishes the current session view.
type SnapshotSource interface {
	Current() domain.Snapshot
}

// RequireAccess rejects requests whose session may not enter area: 401 when signed
// out, 403 when the role does not qualify.
func RequireAccess(area domain.Area, sessions SnapshotSource, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			snap := sessions.Current()
			if err := domain.Authorize(snap, area); err != nil {
				status := fasthttp.StatusUnauthorized
				if domain.IsDomainError(err, domain.ErrCodeForbidden) {
					status = fasthttp.StatusForbidden
					logger.Warn("access denied",
						zap.String("area", string(area)),
						zap.String("session_id", snap.SessionID))
				}
				reject(ctx, status, err)
				return
			}
			next(ctx)
		}
	}
}

// RequireAuthenticated admits any signed-in session.
func RequireAuthenticated(sessions SnapshotSource, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return RequireAccess(domain.AreaAccount, sessions, logger)
}

func reject(ctx *fasthttp.RequestCtx, status int, err error) {
	code := string(domain.CodeOf(err))
	message := err.Error()
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(transport.NewError(code, message, nil).Bytes())
}
