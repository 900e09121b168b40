package identityapi

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/fastygo/storefront-session/domain"
	"github.com/fastygo/storefront-session/internal/config"
)

func newTestClient(t *testing.T, handler fasthttp.RequestHandler) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: handler}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	return NewClient(config.IdentityConfig{BaseURL: "http://identity.test/", Timeout: time.Second}, Options{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	})
}

func TestClient_LoginSuccess(t *testing.T) {
	var got domain.Credentials
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, "/api/auth/login", string(ctx.Path()))
		assert.Equal(t, fasthttp.MethodPost, string(ctx.Method()))
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"_id":"u1","name":"Ada","email":"ada@example.com","role":"seller","isApproved":true,"token":"tok"}`)
	})

	grant, err := client.Login(context.Background(), domain.Credentials{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "tok", grant.Token)
	assert.Equal(t, domain.Identity{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: "seller", IsApproved: true}, grant.Identity)
	assert.Equal(t, domain.Credentials{Email: "ada@example.com", Password: "pw"}, got)
}

func TestClient_LoginKeepsExtraProfileFields(t *testing.T) {
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"_id":"u1","name":"Ada","role":"partner","shopName":"Ada's","token":"tok"}`)
	})

	grant, err := client.Login(context.Background(), domain.Credentials{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "tok", grant.Token)
	assert.True(t, grant.Identity.IsPartner())
	assert.JSONEq(t, `"Ada's"`, string(grant.Identity.Extra["shopName"]))
	assert.NotContains(t, grant.Identity.Extra, "token")
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    domain.ErrorCode
		message string
	}{
		{"unauthorized", fasthttp.StatusUnauthorized, "Invalid email or password", domain.ErrCodeInvalidCredentials, "Invalid email or password"},
		{"seller pending", fasthttp.StatusUnauthorized, "Seller not approved yet", domain.ErrCodeInvalidCredentials, "Seller not approved yet"},
		{"admin exists", fasthttp.StatusBadRequest, `{"message":"Admin user already exists"}`, domain.ErrCodeAdminExists, "Admin user already exists"},
		{"user exists", fasthttp.StatusBadRequest, "User already exists", domain.ErrCodeAlreadyExists, "User already exists"},
		{"invalid", fasthttp.StatusBadRequest, `{"message":"Invalid user data"}`, domain.ErrCodeInvalid, "Invalid user data"},
		{"server", fasthttp.StatusInternalServerError, `{"message":"Server error"}`, domain.ErrCodeServer, "Server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
				ctx.SetStatusCode(tt.status)
				ctx.SetBodyString(tt.body)
			})

			_, err := client.Signup(context.Background(), domain.Profile{Email: "ada@example.com"})
			require.Error(t, err)
			assert.Equal(t, tt.code, domain.CodeOf(err))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestClient_MissingTokenIsServerError(t *testing.T) {
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusCreated)
		ctx.SetBodyString(`{"_id":"u1","name":"Root","role":"admin"}`)
	})

	_, err := client.CreateAdmin(context.Background(), domain.Profile{Name: "Root"})
	require.ErrorIs(t, err, domain.ErrNoToken)
}

func TestClient_CreateAdminOmitsRole(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, "/api/auth/create-admin", string(ctx.Path()))
		_ = json.Unmarshal(ctx.PostBody(), &body)
		ctx.SetBodyString(`{"_id":"a1","role":"admin","token":"t"}`)
	})

	_, err := client.CreateAdmin(context.Background(), domain.Profile{Name: "Root", Role: "customer"})
	require.NoError(t, err)
	assert.NotContains(t, body, "role")
}

func TestClient_UnreachableBackend(t *testing.T) {
	client := NewClient(config.IdentityConfig{BaseURL: "http://identity.test", Timeout: time.Second}, Options{
		Dial: func(string) (net.Conn, error) {
			return nil, &net.OpError{Op: "dial", Err: net.UnknownNetworkError("refused")}
		},
	})

	_, err := client.Login(context.Background(), domain.Credentials{})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeServer, domain.CodeOf(err))
	assert.ErrorIs(t, err, domain.ErrBackendDown)
}

func TestExtractMessage(t *testing.T) {
	assert.Equal(t, "x", extractMessage([]byte(` {"message":"x"} `)))
	assert.Equal(t, "plain", extractMessage([]byte("plain")))
	assert.Equal(t, "{broken", extractMessage([]byte("{broken")))
}
