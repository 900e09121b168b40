package middleware

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/storefront-session/domain"
	"github.com/fastygo/storefront-session/internal/activity"
)

type staticSessions domain.Snapshot

func (s staticSessions) Current() domain.Snapshot { return domain.Snapshot(s) }

func authenticated(role string, approved bool) staticSessions {
	rec := &domain.Record{
		Token:     "t",
		Identity:  domain.Identity{ID: "u", Role: role, IsApproved: approved},
		SessionID: "s",
		ExpiresAt: 1,
	}
	return staticSessions(domain.NewSnapshot(domain.StateAuthenticated, rec, false))
}

func okHandler(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusOK) }

func TestRequireAccess(t *testing.T) {
	signedOut := staticSessions(domain.NewSnapshot(domain.StateUnauthenticated, nil, false))

	tests := []struct {
		name     string
		area     domain.Area
		sessions staticSessions
		status   int
	}{
		{"signed out", domain.AreaAccount, signedOut, fasthttp.StatusUnauthorized},
		{"customer account", domain.AreaAccount, authenticated(domain.RoleCustomer, false), fasthttp.StatusOK},
		{"customer admin", domain.AreaAdmin, authenticated(domain.RoleCustomer, false), fasthttp.StatusForbidden},
		{"admin admin", domain.AreaAdmin, authenticated(domain.RoleAdmin, true), fasthttp.StatusOK},
		{"pending seller", domain.AreaSeller, authenticated(domain.RoleSeller, false), fasthttp.StatusForbidden},
		{"approved seller", domain.AreaSeller, authenticated(domain.RoleSeller, true), fasthttp.StatusOK},
		{"partner seller", domain.AreaSeller, authenticated(domain.RolePartner, false), fasthttp.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctx fasthttp.RequestCtx
			RequireAccess(tt.area, tt.sessions, nil)(okHandler)(&ctx)
			assert.Equal(t, tt.status, ctx.Response.StatusCode())
		})
	}
}

func TestRequireAuthenticated_Body(t *testing.T) {
	var ctx fasthttp.RequestCtx
	signedOut := staticSessions(domain.NewSnapshot(domain.StateUnauthenticated, nil, false))
	RequireAuthenticated(signedOut, nil)(okHandler)(&ctx)

	var body map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, string(domain.ErrCodeUnauthorized), body["code"])
}

func TestActivity_EmitsKnownSignals(t *testing.T) {
	hub := activity.NewHub()
	var got []activity.Signal
	unsubscribe := hub.Subscribe(activity.Signals, func(s activity.Signal) { got = append(got, s) })
	defer unsubscribe()

	handler := Activity(hub, nil)(okHandler)
	for _, raw := range []string{"keydown", "", "hover", "mousedown"} {
		var ctx fasthttp.RequestCtx
		if raw != "" {
			ctx.Request.Header.Set(SignalHeader, raw)
		}
		handler(&ctx)
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	}

	assert.Equal(t, []activity.Signal{activity.KeyDown, activity.PointerDown}, got)
}
