// Package gateway is the thin HTTP client each tier uses to reach the tier
// above/below it. One synchronous call per hop, no retries; any non-2xx is
// the caller's to interpret.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tiercommerce/orders/internal/auth"
	"github.com/tiercommerce/orders/internal/peerapi"
)

const loginPath = "/api/auth/login"

type Client struct {
	http *resty.Client

	// bearer mode: lazy service-account login against the peer
	user string
	pass string
	mu   sync.Mutex
	tok  string

	// api-key mode: static shared secret header
	apiKey string
}

type Option func(*Client)

func WithServiceAccount(user, pass string) Option {
	return func(c *Client) { c.user, c.pass = user, pass }
}

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http: resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call performs the single HTTP call. out, when non-nil, is filled from a
// 2xx JSON body. The status code comes back unjudged.
func (c *Client) Call(ctx context.Context, method, path string, body, out any) (int, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	switch {
	case c.apiKey != "":
		req.SetHeader(auth.HeaderAPIKey, c.apiKey)
	case c.user != "":
		token, err := c.ensureToken(ctx)
		if err != nil {
			return 0, err
		}
		req.SetAuthToken(token)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode(), nil
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tok != "" {
		return c.tok, nil
	}

	var out peerapi.LoginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(peerapi.LoginRequest{Login: c.user, Password: c.pass}).
		SetResult(&out).
		Post(loginPath)
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("service login status: %d", resp.StatusCode())
	}
	c.tok = out.Token
	return c.tok, nil
}
