// Package backend is the managed client for the hosted identity and data
// services. Every call goes through one timed HTTP transport.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dukerupert/recipebox/internal/metrics"
)

const (
	apiAuth = "auth"
	apiRest = "rest"
)

// TokenSource returns the current access token, or "" when signed out.
type TokenSource func(ctx context.Context) (string, error)

// Client talks to the identity (/auth/v1) and data (/rest/v1) endpoints.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	tokens     TokenSource
	metrics    metrics.Recorder
	logger     *slog.Logger

	authTimeout time.Duration
	userTimeout time.Duration
	dataTimeout time.Duration

	mu        sync.RWMutex
	listeners []authListener
	nextID    uint64
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource sets where authenticated queries read their bearer token.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTimeouts sets the sign-in/sign-up, whoami and data call deadlines.
// Zero values keep the defaults.
func WithTimeouts(auth, user, data time.Duration) Option {
	return func(c *Client) {
		if auth > 0 {
			c.authTimeout = auth
		}
		if user > 0 {
			c.userTimeout = user
		}
		if data > 0 {
			c.dataTimeout = data
		}
	}
}

func New(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		anonKey:     anonKey,
		httpClient:  &http.Client{},
		tokens:      func(context.Context) (string, error) { return "", nil },
		metrics:     metrics.Nop{},
		logger:      slog.Default(),
		authTimeout: 10 * time.Second,
		userTimeout: 5 * time.Second,
		dataTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	api     string
	method  string
	path    string
	query   url.Values
	token   string
	prefer  []string
	body    any
	timeout time.Duration
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool { return r.status >= 200 && r.status < 300 }

func (r *response) err() error {
	if r.ok() {
		return nil
	}
	return &RemoteError{Status: r.status, Body: string(r.body)}
}

// do sends one request under its deadline and reads the whole body.
// Only transport failures are returned as errors.
func (c *Client) do(ctx context.Context, r request) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	op := r.method + " " + r.path

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", r.path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	bearer := r.token
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	for _, p := range r.prefer {
		req.Header.Add("Prefer", p)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		nerr := &NetworkError{Op: op, Err: err}
		c.metrics.RecordNetworkError(r.api, nerr.Timeout())
		c.logger.Warn("backend request failed", "op", op, "error", err)
		return nil, nerr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		nerr := &NetworkError{Op: op, Err: err}
		c.metrics.RecordNetworkError(r.api, nerr.Timeout())
		return nil, nerr
	}

	elapsed := time.Since(start)
	c.metrics.RecordRequest(r.api, resp.StatusCode, elapsed)
	c.logger.Debug("backend request",
		"op", op,
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
	)

	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// IdentityPost posts body to an identity endpoint under the sign-in deadline
// and decodes a 2xx payload into out. Non-2xx responses return *RemoteError.
func (c *Client) IdentityPost(ctx context.Context, path string, query url.Values, body, out any) error {
	resp, err := c.do(ctx, request{
		api:     apiAuth,
		method:  http.MethodPost,
		path:    "/auth/v1" + path,
		query:   query,
		body:    body,
		timeout: c.authTimeout,
	})
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// IdentityGet fetches an identity endpoint with token under the whoami deadline.
func (c *Client) IdentityGet(ctx context.Context, path, token string, out any) error {
	resp, err := c.do(ctx, request{
		api:     apiAuth,
		method:  http.MethodGet,
		path:    "/auth/v1" + path,
		token:   token,
		timeout: c.userTimeout,
	})
	if err != nil {
		return err
	}
	return decode(resp, out)
}

func decode(resp *response, out any) error {
	if err := resp.err(); err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
