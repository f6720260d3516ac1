// SPDX-License-Identifier: MIT

package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/certbundle/cabot/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRateLimit(1000, 1000), WithRetries(2)}, opts...)
	return New(srv.URL, "acme", "certs", "tok123", opts...)
}

func TestCreatePull(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody NewPull

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(PullRequest{Number: 7, State: "open", HTMLURL: "https://example.com/pr/7"})
	}))

	pr, err := c.CreatePull(context.Background(), NewPull{
		Title: "CA Cert updates",
		Head:  "cacert-updates",
		Base:  "main",
		Body:  "Newest Mozilla CA cert",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.Equal(t, "/repos/acme/certs/pulls", gotPath)
	assert.Equal(t, "CA Cert updates", gotBody.Title)
	assert.Equal(t, "cacert-updates", gotBody.Head)
}

func TestListPullsFiltersByHead(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "acme:cacert-updates", r.URL.Query().Get("head"))
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		_ = json.NewEncoder(w).Encode([]PullRequest{{Number: 3, State: "open"}})
	}))

	prs, err := c.ListPulls(context.Background(), "cacert-updates", "open")
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, 3, prs[0].Number)
}

func TestRetryOn500(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "bad gateway"})
			return
		}
		_ = json.NewEncoder(w).Encode([]PullRequest{})
	}))

	_, err := c.ListPulls(context.Background(), "b", "open")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOn422(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Validation Failed"})
	}))

	_, err := c.CreatePull(context.Background(), NewPull{Title: "t", Head: "h", Base: "b"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "Validation Failed", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestETagRevalidation(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("If-None-Match") == `W/"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `W/"v1"`)
		_ = json.NewEncoder(w).Encode([]PullRequest{{Number: 9}})
	}), WithCache(cache.NewMemory(0)))

	prs, err := c.ListPulls(context.Background(), "b", "open")
	require.NoError(t, err)
	require.Len(t, prs, 1)

	// Second call is served from cache after a 304.
	prs, err = c.ListPulls(context.Background(), "b", "open")
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, 9, prs[0].Number)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDeleteBranchTolerance(t *testing.T) {
	t.Run("missing ref 422", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Reference does not exist"})
		}))
		assert.NoError(t, c.DeleteBranch(context.Background(), "gone"))
	})

	t.Run("missing ref 404", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		assert.NoError(t, c.DeleteBranch(context.Background(), "gone"))
	})

	t.Run("real failure", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "forbidden"})
		}))
		assert.Error(t, c.DeleteBranch(context.Background(), "protected"))
	})
}

func TestReviewersAndAssignees(t *testing.T) {
	var paths []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var payload map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusCreated)
	}))

	ctx := context.Background()
	require.NoError(t, c.RequestReviewers(ctx, 7, []string{"wjblanke", "emlowe"}))
	require.NoError(t, c.AddAssignees(ctx, 7, []string{"emlowe"}))

	// Empty lists are a no-op without a request.
	require.NoError(t, c.RequestReviewers(ctx, 7, nil))

	assert.Equal(t, []string{
		"/repos/acme/certs/pulls/7/requested_reviewers",
		"/repos/acme/certs/issues/7/assignees",
	}, paths)
}

type failingCloseBody struct {
	*bytes.Reader
}

func (failingCloseBody) Close() error { return errors.New("close failed") }

type staticTransport struct {
	status int
	body   []byte
}

func (s *staticTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: s.status,
		Header:     http.Header{},
		Body:       failingCloseBody{bytes.NewReader(s.body)},
		Request:    r,
	}, nil
}

func TestBodyCloseFailureKeepsResult(t *testing.T) {
	body, err := json.Marshal([]PullRequest{{Number: 4, State: "open"}})
	require.NoError(t, err)

	hc := &http.Client{Transport: &staticTransport{status: http.StatusOK, body: body}}
	c := New("https://api.example.invalid", "acme", "certs", "tok123",
		WithHTTPClient(hc), WithRateLimit(1000, 1000))

	prs, err := c.ListPulls(context.Background(), "b", "open")
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, 4, prs[0].Number)
}

func TestContextCancellation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.ListPulls(ctx, "b", "open")
	assert.Error(t, err)
}
