package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/studysync/studysync/internal/session"
	"github.com/studysync/studysync/internal/telemetry"
)

const snippetLen = 120

// Config holds common client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration // per-attempt deadline
	MaxTries  uint          // total attempts for transport failures
	// RetryInterval is the first backoff delay; it doubles per attempt.
	RetryInterval time.Duration
	UserAgent     string
	DeviceID      string
	// HTTPClient overrides the transport, e.g. NewCachingHTTPClient for
	// catalog reads or a logging transport in debug mode.
	HTTPClient *http.Client
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://api.studysync.app",
		Timeout:   30 * time.Second,
		MaxTries:  3,
		UserAgent: "studysync-cli",
	}
}

// Client issues JSON requests against the backend, attaching the session's
// bearer token and retrying transport failures with exponential backoff.
// It never mutates the session store: a 401 surfaces as ErrAuthExpired and
// the caller decides what to do with the stale session.
type Client struct {
	cfg   Config
	http  *http.Client
	store session.Store
}

// New creates a backend API client. store may be nil for unauthenticated use.
func New(cfg Config, store session.Store) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		cfg:   cfg,
		http:  httpClient,
		store: store,
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return strings.TrimRight(c.cfg.BaseURL, "/")
}

// RequestOption customises a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	idempotencyKey string
}

// WithIdempotencyKey attaches an Idempotency-Key header so a retried POST
// (same key) cannot be applied twice by the backend.
func WithIdempotencyKey(key string) RequestOption {
	return func(o *requestOptions) {
		o.idempotencyKey = key
	}
}

// Get issues an authenticated GET and decodes the response data into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

// envelope is the backend's uniform response shape.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Do performs a single logical request. Only transport and timeout failures
// are retried; HTTP statuses and application-level failures terminate
// immediately (401 -> ErrAuthExpired, 404 -> ErrNotFound, success=false ->
// *APIError, non-JSON body -> *MalformedResponseError).
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	var reqOpts requestOptions
	for _, opt := range opts {
		opt(&reqOpts)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	token := c.bearerToken(ctx)

	m := telemetry.GetMetrics()
	m.APIRequestsTotal.Add(ctx, 1)
	started := time.Now()

	operation := func() (struct{}, error) {
		return struct{}{}, c.attempt(ctx, method, path, payload, token, &reqOpts, out)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.cfg.RetryInterval
	expo.Multiplier = 2
	expo.MaxInterval = 30 * time.Second

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(c.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.APIRetriesTotal.Add(ctx, 1)
			log.Warn().
				Err(err).
				Str("method", method).
				Str("path", path).
				Dur("next_retry", next).
				Msg("request failed, will retry")
		}),
	)

	m.APIDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
	if err != nil {
		m.APIErrorsTotal.Add(ctx, 1)
	}

	return err
}

// attempt runs one round trip with its own deadline and classifies the
// result. A returned error without a Permanent wrapper is retryable.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, token string, reqOpts *requestOptions, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, reqBody)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.DeviceID != "" {
		req.Header.Set("X-Device-Id", c.cfg.DeviceID)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if reqOpts.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", reqOpts.idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport or timeout failure: retryable.
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return backoff.Permanent(ErrAuthExpired)
	case http.StatusNotFound:
		return backoff.Permanent(fmt.Errorf("%s %s: %w", method, path, ErrNotFound))
	}

	// An HTML error page must never reach the JSON decoder.
	if sniffed := bytes.TrimSpace(data); len(sniffed) > 0 && sniffed[0] == '<' {
		return backoff.Permanent(&MalformedResponseError{
			StatusCode: resp.StatusCode,
			Snippet:    snippet(sniffed),
		})
	}

	var env envelope
	if len(data) > 0 {
		if err := json.Unmarshal(data, &env); err != nil {
			return backoff.Permanent(&MalformedResponseError{
				StatusCode: resp.StatusCode,
				Snippet:    snippet(data),
			})
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return backoff.Permanent(&APIError{
			StatusCode: resp.StatusCode,
			Message:    env.Message,
		})
	}

	if env.Success != nil && !*env.Success {
		return backoff.Permanent(&APIError{
			StatusCode: resp.StatusCode,
			Message:    env.Message,
		})
	}

	if out != nil {
		raw := env.Data
		if raw == nil {
			// Endpoints without the envelope answer with the object itself.
			raw = data
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return backoff.Permanent(&MalformedResponseError{
				StatusCode: resp.StatusCode,
				Snippet:    snippet(raw),
			})
		}
	}

	return nil
}

// bearerToken reads the current session token, if any. The token is read
// once per logical request so all attempts carry the same credential.
func (c *Client) bearerToken(ctx context.Context) string {
	if c.store == nil {
		return ""
	}
	sess, err := c.store.Get(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNotSignedIn) {
			log.Warn().Err(err).Msg("failed to read session")
		}
		return ""
	}
	return sess.Token
}

func snippet(data []byte) string {
	s := string(data)
	if len(s) > snippetLen {
		return s[:snippetLen]
	}
	return s
}
