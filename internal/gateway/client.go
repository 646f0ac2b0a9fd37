package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

type Options struct {
	BaseURL      string
	Timeout      time.Duration
	RetryBackoff time.Duration
	HTTPClient   *http.Client
	Logger       *zap.Logger
	// NewKey produces idempotency keys for mutating calls.
	NewKey func() string
}

// Client is the Backend Gateway: one method per backend call, no business
// logic.
type Client struct {
	baseURL string
	http    *http.Client
	backoff time.Duration
	log     *zap.Logger
	newKey  func() string

	mu    sync.RWMutex
	token string
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	newKey := opts.NewKey
	if newKey == nil {
		newKey = uuid.NewString
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		backoff: opts.RetryBackoff,
		log:     log,
		newKey:  newKey,
	}
}

// SetToken sets the bearer token attached to subsequent requests. An empty
// token removes it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL returns the configured API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// NewIdempotencyKey returns a fresh key for one user-initiated mutation.
func (c *Client) NewIdempotencyKey() string { return c.newKey() }

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool { return r.status >= 200 && r.status < 300 }

func (r response) unauthorized() bool {
	return r.status == http.StatusUnauthorized || r.status == http.StatusForbidden
}

// serverMessage returns the "error" (or "message") field of a JSON error
// body, or "" when there is none.
func (r response) serverMessage() string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}

func (r response) messageOr(fallback string) string {
	if msg := r.serverMessage(); msg != "" {
		return msg
	}
	return fallback
}

// do sends one request. Transport failures are retried once after the
// configured backoff; mutating requests keep the same Idempotency-Key on the
// retry.
func (c *Client) do(ctx context.Context, method, path string, body any, key string) (response, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return response{}, fmt.Errorf("marshal request: %w", err)
		}
		payload = data
	}
	if method != http.MethodGet && key == "" {
		key = c.newKey()
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			c.log.Debug("gateway retry", zap.String("method", method), zap.String("path", path), zap.Error(lastErr))
			if err := sleep(ctx, c.backoff); err != nil {
				return response{}, err
			}
		}

		resp, err := c.send(ctx, method, path, payload, key)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return response{}, ctx.Err()
		}
		lastErr = err
	}
	return response{}, lastErr
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, key string) (response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return response{}, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return response{}, err
	}
	c.log.Debug("gateway request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", res.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return response{status: res.StatusCode, body: data}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Join(ErrMalformedResponse, err)
	}
	return nil
}
