package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/storefront-session/domain"
	"github.com/fastygo/storefront-session/internal/activity"
	"github.com/fastygo/storefront-session/internal/infrastructure/monitor"
	"github.com/fastygo/storefront-session/internal/sessionstore"
	"github.com/fastygo/storefront-session/pkg/clock"
	"github.com/fastygo/storefront-session/pkg/httpcontext"
	"github.com/fastygo/storefront-session/repository/memory"
	sessionUC "github.com/fastygo/storefront-session/usecase/session"
)

type stubIdentity struct {
	users map[string]domain.Grant
}

func (s stubIdentity) Login(_ context.Context, creds domain.Credentials) (domain.Grant, error) {
	grant, ok := s.users[creds.Email]
	if !ok || creds.Password != "secret" {
		return domain.Grant{}, domain.NewError(domain.ErrCodeInvalidCredentials, "Invalid email or password")
	}
	return grant, nil
}

func (s stubIdentity) Signup(_ context.Context, profile domain.Profile) (domain.Grant, error) {
	if _, ok := s.users[profile.Email]; ok {
		return domain.Grant{}, domain.NewError(domain.ErrCodeAlreadyExists, "User already exists")
	}
	return domain.Grant{Token: "new", Identity: domain.Identity{ID: "n", Email: profile.Email, Role: profile.Role}}, nil
}

func (s stubIdentity) CreateAdmin(context.Context, domain.Profile) (domain.Grant, error) {
	return domain.Grant{}, domain.NewError(domain.ErrCodeAdminExists, "Admin user already exists")
}

type env struct {
	handler *SessionHandler
	manager *sessionUC.Manager
	clock   *clock.Manual
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := clock.AtMillis(0)
	hub := activity.NewHub()
	manager := sessionUC.New(sessionUC.Config{CheckInterval: time.Hour}, sessionUC.Dependencies{
		Identity: stubIdentity{users: map[string]domain.Grant{
			"ada@example.com":   {Token: "t1", Identity: domain.Identity{ID: "u1", Name: "Ada", Role: domain.RoleCustomer}},
			"admin@example.com": {Token: "t2", Identity: domain.Identity{ID: "u2", Name: "Root", Role: domain.RoleAdmin, IsApproved: true}},
		}},
		Store:     sessionstore.NewAdapter(memory.NewStore(), memory.NewShared().Open(), nil),
		Activity:  hub,
		Scheduler: clk,
		Clock:     clk,
	})
	t.Cleanup(manager.Close)
	manager.Start(context.Background())

	return &env{
		handler: NewSessionHandler(manager, hub, httpcontext.NewAdapter(time.Second, nil), nil),
		manager: manager,
		clock:   clk,
	}
}

func call(h fasthttp.RequestHandler, body string, userValues map[string]string) (*fasthttp.RequestCtx, map[string]any) {
	var ctx fasthttp.RequestCtx
	ctx.Request.SetBodyString(body)
	for k, v := range userValues {
		ctx.SetUserValue(k, v)
	}
	h(&ctx)

	var out map[string]any
	_ = json.Unmarshal(ctx.Response.Body(), &out)
	return &ctx, out
}

func TestSessionHandler_LoginAndCurrent(t *testing.T) {
	e := newEnv(t)

	ctx, body := call(e.handler.Login, `{"email":"ada@example.com","password":"secret","remember_me":true}`, nil)
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["is_logged_in"])
	assert.Equal(t, true, data["remember_me"])
	assert.Equal(t, "authenticated", data["state"])
	assert.NotEmpty(t, ctx.Response.Header.Peek("X-Request-ID"))

	ctx, body = call(e.handler.Current, "", nil)
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "Ada", body["data"].(map[string]any)["user"].(map[string]any)["name"])
}

func TestSessionHandler_LoginErrors(t *testing.T) {
	e := newEnv(t)

	ctx, body := call(e.handler.Login, `{"email":"ada@example.com","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
	assert.Equal(t, string(domain.ErrCodeInvalidCredentials), body["code"])
	assert.Equal(t, "Invalid email or password", body["error"].(map[string]any)["message"])

	ctx, _ = call(e.handler.Login, `{"email":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())

	ctx, body = call(e.handler.Signup, `{"name":"Ada","email":"ada@example.com","password":"x"}`, nil)
	assert.Equal(t, http.StatusConflict, ctx.Response.StatusCode())
	assert.Equal(t, string(domain.ErrCodeAlreadyExists), body["code"])

	ctx, body = call(e.handler.CreateAdmin, `{"name":"Root","email":"root@example.com","password":"x"}`, nil)
	assert.Equal(t, http.StatusConflict, ctx.Response.StatusCode())
	assert.Equal(t, string(domain.ErrCodeAdminExists), body["code"])

	ctx, _ = call(e.handler.Signup, `{"email":"eve@example.com","password":"x","role":"admin"}`, nil)
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())
}

func TestSessionHandler_SignupCreatesSession(t *testing.T) {
	e := newEnv(t)

	ctx, body := call(e.handler.Signup, `{"name":"Eve","email":"eve@example.com","password":"x","role":"seller"}`, nil)
	require.Equal(t, http.StatusCreated, ctx.Response.StatusCode())
	data := body["data"].(map[string]any)
	assert.Equal(t, false, data["remember_me"])
	assert.Equal(t, "seller", data["user"].(map[string]any)["role"])
}

func TestSessionHandler_ExtendActivityAndLogout(t *testing.T) {
	e := newEnv(t)

	ctx, _ := call(e.handler.Extend, "", nil)
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())

	_, err := e.manager.Login(context.Background(), "ada@example.com", "secret", false)
	require.NoError(t, err)

	e.clock.SetMillis(60000)
	ctx, _ = call(e.handler.Activity, `{"signal":"scroll"}`, nil)
	assert.Equal(t, http.StatusAccepted, ctx.Response.StatusCode())
	assert.Equal(t, int64(60000+1800000), e.manager.Current().ExpiresAt)

	ctx, _ = call(e.handler.Activity, `{"signal":"hover"}`, nil)
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())

	e.clock.SetMillis(120000)
	ctx, _ = call(e.handler.Extend, "", nil)
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, int64(120000+1800000), e.manager.Current().ExpiresAt)

	ctx, body := call(e.handler.Valid, "", nil)
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, true, body["data"].(map[string]any)["valid"])

	ctx, body = call(e.handler.Logout, "", nil)
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, false, body["data"].(map[string]any)["is_logged_in"])

	ctx, _ = call(e.handler.Logout, "", nil)
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
}

func TestSessionHandler_Access(t *testing.T) {
	e := newEnv(t)

	ctx, _ := call(e.handler.Access, "", map[string]string{"area": "account"})
	assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())

	_, err := e.manager.Login(context.Background(), "ada@example.com", "secret", false)
	require.NoError(t, err)

	ctx, _ = call(e.handler.Access, "", map[string]string{"area": "account"})
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	ctx, _ = call(e.handler.Access, "", map[string]string{"area": "admin"})
	assert.Equal(t, http.StatusForbidden, ctx.Response.StatusCode())
	ctx, _ = call(e.handler.Access, "", map[string]string{"area": "billing"})
	assert.Equal(t, http.StatusNotFound, ctx.Response.StatusCode())

	_, err = e.manager.Login(context.Background(), "admin@example.com", "secret", true)
	require.NoError(t, err)
	ctx, _ = call(e.handler.Access, "", map[string]string{"area": "admin"})
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
}

type fixedStatus monitor.Status

func (s fixedStatus) GetStatus() monitor.Status { return monitor.Status(s) }

func TestHealthHandler_Check(t *testing.T) {
	healthy := NewHealthHandler(fixedStatus{Components: map[string]bool{"durable_store": true}, LastCheck: time.Now()}, "bolt", nil, nil)
	ctx, body := call(healthy.Check, "", nil)
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "bolt", body["data"].(map[string]any)["durable_driver"])

	degraded := NewHealthHandler(fixedStatus{Components: map[string]bool{"durable_store": false}, LastCheck: time.Now()}, "redis", nil, nil)
	ctx, body = call(degraded.Check, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, ctx.Response.StatusCode())
	assert.Equal(t, "DEGRADED", body["code"])
}

func TestMapError(t *testing.T) {
	status, code := mapError(domain.WrapError(domain.ErrCodeServer, "Backend server not available", context.DeadlineExceeded))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "SERVER_ERROR", code)

	status, code = mapError(context.Canceled)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL", code)
}
