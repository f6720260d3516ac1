// SPDX-License-Identifier: MIT

// Package github is a minimal GitHub REST v3 client covering what the
// update job needs: pull requests, reviewers, assignees, and ref cleanup.
package github

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

	"github.com/certbundle/cabot/internal/cache"
	"github.com/certbundle/cabot/internal/log"
	"github.com/certbundle/cabot/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned for 404s and for ref deletions of refs that do
// not exist (GitHub reports those as 422).
var ErrNotFound = errors.New("github: not found")

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to the GitHub REST API for a single repository.
type Client struct {
	base    string
	owner   string
	repo    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	cache   cache.Cache
	retries int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCache enables ETag conditional requests backed by the given cache.
func WithCache(cc cache.Cache) Option {
	return func(c *Client) { c.cache = cc }
}

// WithRetries sets the retry count for 5xx/429 responses.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// WithRateLimit caps the request rate (requests per second).
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// New creates a client bound to owner/repo.
func New(base, owner, repo, token string, opts ...Option) *Client {
	c := &Client{
		base:  strings.TrimRight(base, "/"),
		owner: owner,
		repo:  repo,
		token: token,
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		// Secondary rate limits bite around 1 rps for mutations.
		limiter: rate.NewLimiter(rate.Limit(1), 5),
		retries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do performs one API call with rate limiting, retries, and optional ETag
// revalidation for GETs. out may be nil for responses without a body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			metrics.IncGitHubRetry()
			backoff := time.Duration(attempt*attempt*500) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		retryable, err := c.once(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return fmt.Errorf("github request failed after %d retries: %w", c.retries, lastErr)
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) (retryable bool, err error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	etagKey := "etag:" + path
	bodyKey := "body:" + path
	conditional := method == http.MethodGet && c.cache != nil
	if conditional {
		if etag, ok := c.cache.Get(etagKey); ok {
			req.Header.Set("If-None-Match", string(etag))
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return true, err
	}
	// The body has been fully consumed by the time the close runs; a close
	// failure must not turn a parsed response into a request error.
	defer func() { _ = res.Body.Close() }()

	metrics.IncGitHubRequest(method, fmt.Sprintf("%d", res.StatusCode))

	switch {
	case res.StatusCode == http.StatusNotModified && conditional:
		if cached, ok := c.cache.Get(bodyKey); ok && out != nil {
			return false, json.Unmarshal(cached, out)
		}
		// Cache lost the body; drop the ETag and retry unconditionally.
		c.cache.Delete(etagKey)
		return true, fmt.Errorf("etag cache miss for %s", path)

	case res.StatusCode >= 200 && res.StatusCode < 300:
		data, err := io.ReadAll(res.Body)
		if err != nil {
			return true, err
		}
		if conditional {
			if etag := res.Header.Get("ETag"); etag != "" {
				c.cache.Set(etagKey, []byte(etag), time.Hour)
				c.cache.Set(bodyKey, data, time.Hour)
			}
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return false, fmt.Errorf("decode response: %w", err)
			}
		}
		return false, nil

	case res.StatusCode == http.StatusNotFound:
		return false, ErrNotFound

	default:
		apiErr := &APIError{StatusCode: res.StatusCode, Message: errorMessage(res.Body)}
		retryable := res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests
		if retryable {
			logger := log.WithComponentFromContext(ctx, "github")
			logger.Warn().
				Int("status", res.StatusCode).
				Str("path", path).
				Msg("retryable GitHub API error")
		}
		return retryable, apiErr
	}
}

func errorMessage(r io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil || payload.Message == "" {
		return "unknown error"
	}
	return payload.Message
}

func (c *Client) repoPath(suffix string) string {
	return fmt.Sprintf("/repos/%s/%s%s", c.owner, c.repo, suffix)
}
