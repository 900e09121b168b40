// Package identityapi talks to the storefront's identity service over HTTP.
package identityapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/storefront-session/domain"
	"github.com/fastygo/storefront-session/internal/config"
)

const (
	loginPath  = "/api/auth/login"
	signupPath = "/api/auth/register"
	adminPath  = "/api/auth/create-admin"
)

// Options tune the underlying fasthttp client.
type Options struct {
	// Dial replaces the TCP dialer, mainly for in-memory listeners.
	Dial   fasthttp.DialFunc
	Logger *zap.Logger
}

// Client exchanges credentials for tokens.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *fasthttp.Client
	logger  *zap.Logger
}

// NewClient builds a client for the configured identity service.
func NewClient(cfg config.IdentityConfig, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                "storefront-session",
			Dial:                opts.Dial,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		logger: logger,
	}
}

func (c *Client) Login(ctx context.Context, creds domain.Credentials) (domain.Grant, error) {
	return c.post(ctx, loginPath, creds)
}

func (c *Client) Signup(ctx context.Context, profile domain.Profile) (domain.Grant, error) {
	return c.post(ctx, signupPath, profile)
}

func (c *Client) CreateAdmin(ctx context.Context, profile domain.Profile) (domain.Grant, error) {
	profile.Role = ""
	return c.post(ctx, adminPath, profile)
}

// Ping checks that the identity service accepts connections.
func (c *Client) Ping(ctx context.Context) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/")
	req.Header.SetMethod(fasthttp.MethodHead)
	if err := c.http.DoTimeout(req, resp, c.deadline(ctx)); err != nil {
		return domain.WrapError(domain.ErrCodeServer, domain.ErrBackendDown.Message, err)
	}
	return nil
}

type grantResponse struct {
	Token string `json:"token"`
}

func (c *Client) post(ctx context.Context, path string, payload any) (domain.Grant, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Grant{}, domain.WrapError(domain.ErrCodeInvalid, "invalid payload", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := ctx.Err(); err != nil {
		return domain.Grant{}, domain.WrapError(domain.ErrCodeServer, domain.ErrBackendDown.Message, err)
	}
	if err := c.http.DoTimeout(req, resp, c.deadline(ctx)); err != nil {
		c.logger.Warn("identity service unreachable", zap.String("path", path), zap.Error(err))
		return domain.Grant{}, domain.WrapError(domain.ErrCodeServer, domain.ErrBackendDown.Message, err)
	}

	status := resp.StatusCode()
	if status >= http.StatusBadRequest {
		err := classify(status, extractMessage(resp.Body()))
		c.logger.Debug("identity service rejected request",
			zap.String("path", path),
			zap.Int("status", status),
			zap.Error(err))
		return domain.Grant{}, err
	}

	var out grantResponse
	var identity domain.Identity
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return domain.Grant{}, domain.WrapError(domain.ErrCodeServer, "identity service returned an unreadable body", err)
	}
	if out.Token == "" {
		return domain.Grant{}, domain.ErrNoToken
	}
	if err := json.Unmarshal(resp.Body(), &identity); err != nil {
		return domain.Grant{}, domain.WrapError(domain.ErrCodeServer, "identity service returned an unreadable body", err)
	}
	return domain.Grant{Token: out.Token, Identity: identity.Without("token", "message")}, nil
}

func (c *Client) deadline(ctx context.Context) time.Duration {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	return timeout
}

// classify maps an error response onto the failure taxonomy shown to users.
func classify(status int, message string) error {
	switch {
	case status == http.StatusUnauthorized:
		if message == "" {
			message = "Invalid email or password"
		}
		return domain.NewError(domain.ErrCodeInvalidCredentials, message)
	case status == http.StatusBadRequest && strings.Contains(message, "Admin user already exists"):
		return domain.NewError(domain.ErrCodeAdminExists, message)
	case status == http.StatusBadRequest && strings.Contains(message, "already exists"):
		return domain.NewError(domain.ErrCodeAlreadyExists, message)
	case status == http.StatusBadRequest:
		if message == "" {
			message = "Invalid user data"
		}
		return domain.NewError(domain.ErrCodeInvalid, message)
	default:
		if message == "" {
			message = http.StatusText(status)
		}
		return domain.NewError(domain.ErrCodeServer, message)
	}
}

// extractMessage reads {"message": "..."} bodies and falls back to plain text.
func extractMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			return payload.Message
		}
	}
	return string(body)
}
