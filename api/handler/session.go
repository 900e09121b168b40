package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/storefront-session/api/transport"
	"github.com/fastygo/storefront-session/domain"
	"github.com/fastygo/storefront-session/internal/activity"
	"github.com/fastygo/storefront-session/pkg/httpcontext"
	sessionUC "github.com/fastygo/storefront-session/usecase/session"
)

// SessionService is the lifecycle manager as seen by the gateway.
type SessionService interface {
	Current() domain.Snapshot
	Login(ctx context.Context, email, password string, rememberMe bool) (domain.Snapshot, error)
	Signup(ctx context.Context, req sessionUC.SignupRequest) (domain.Snapshot, error)
	CreateAdmin(ctx context.Context, req sessionUC.AdminRequest) (domain.Snapshot, error)
	Logout(ctx context.Context) domain.Snapshot
	Extend(ctx context.Context) bool
	IsSessionValid(ctx context.Context) bool
}

// SignalEmitter forwards interaction signals to the activity tracker.
type SignalEmitter interface {
	Emit(signal activity.Signal)
}

type SessionHandler struct {
	baseHandler
	sessions SessionService
	signals  SignalEmitter
}

func NewSessionHandler(sessions SessionService, signals SignalEmitter, adapter *httpcontext.Adapter, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		baseHandler: newBaseHandler(adapter, logger),
		sessions:    sessions,
		signals:     signals,
	}
}

// @Summary Current session view
// @Tags session
// @Router /api/session [get]
func (h *SessionHandler) Current(ctx *fasthttp.RequestCtx) {
	h.respondSuccess(ctx, http.StatusOK, h.sessions.Current())
}

// @Summary Check that a non-expired session is persisted
// @Tags session
// @Router /api/session/valid [get]
func (h *SessionHandler) Valid(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	valid := h.sessions.IsSessionValid(stdCtx)
	h.respondSuccess(ctx, http.StatusOK, map[string]bool{"valid": valid})
}

// @Summary Sign in with email and password
// @Tags session
// @Router /api/session/login [post]
func (h *SessionHandler) Login(ctx *fasthttp.RequestCtx) {
	var req transport.LoginRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.respondInvalid(ctx)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	snap, err := h.sessions.Login(stdCtx, strings.TrimSpace(req.Email), req.Password, req.RememberMe)
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, snap)
}

// @Summary Register an account and sign in
// @Tags session
// @Router /api/session/signup [post]
func (h *SessionHandler) Signup(ctx *fasthttp.RequestCtx) {
	var req transport.SignupRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.respondInvalid(ctx)
		return
	}
	if req.Role == domain.RoleAdmin {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "role not allowed", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	snap, err := h.sessions.Signup(stdCtx, sessionUC.SignupRequest{
		Name:       req.Name,
		Email:      strings.TrimSpace(req.Email),
		Password:   req.Password,
		Role:       req.Role,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, snap)
}

// @Summary Create the first administrator and sign in
// @Tags session
// @Router /api/session/admin [post]
func (h *SessionHandler) CreateAdmin(ctx *fasthttp.RequestCtx) {
	var req transport.AdminRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.respondInvalid(ctx)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	snap, err := h.sessions.CreateAdmin(stdCtx, sessionUC.AdminRequest{
		Name:       req.Name,
		Email:      strings.TrimSpace(req.Email),
		Password:   req.Password,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, snap)
}

// @Summary Sign out and clear persisted state
// @Tags session
// @Router /api/session/logout [post]
func (h *SessionHandler) Logout(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	h.respondSuccess(ctx, http.StatusOK, h.sessions.Logout(stdCtx))
}

// @Summary Renew the active session
// @Tags session
// @Router /api/session/extend [post]
func (h *SessionHandler) Extend(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if !h.sessions.Extend(stdCtx) {
		h.respondError(stdCtx, ctx, domain.ErrUnauthorized)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, h.sessions.Current())
}

// @Summary Report a user interaction
// @Tags session
// @Router /api/session/activity [post]
func (h *SessionHandler) Activity(ctx *fasthttp.RequestCtx) {
	var req transport.ActivityRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondInvalid(ctx)
		return
	}
	signal, ok := activity.ParseSignal(req.Signal)
	if !ok {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "unknown signal", nil))
		return
	}
	h.signals.Emit(signal)
	h.respondSuccess(ctx, http.StatusAccepted, h.sessions.Current())
}

// @Summary Check access to a guarded area
// @Tags session
// @Router /api/session/access/{area} [get]
func (h *SessionHandler) Access(ctx *fasthttp.RequestCtx) {
	raw, _ := ctx.UserValue("area").(string)
	area, ok := domain.ParseArea(raw)
	if !ok {
		h.respondJSON(ctx, http.StatusNotFound, transport.NewError("NOT_FOUND", "unknown area", nil))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := domain.Authorize(h.sessions.Current(), area); err != nil {
		h.respondError(stdCtx, ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]string{"area": string(area)})
}
