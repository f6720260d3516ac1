// SPDX-License-Identifier: MIT

package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// PullRequest is the subset of the API object the job cares about.
type PullRequest struct {
	Number   int    `json:"number"`
	State    string `json:"state"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	HTMLURL  string `json:"html_url"`
	Merged   bool   `json:"merged"`
	MergedAt string `json:"merged_at"`
	Head     Ref    `json:"head"`
	Base     Ref    `json:"base"`
}

// Ref is a branch reference inside a pull request.
type Ref struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// NewPull is the payload for creating a pull request.
type NewPull struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body"`
}

// CreatePull opens a pull request.
func (c *Client) CreatePull(ctx context.Context, p NewPull) (*PullRequest, error) {
	var pr PullRequest
	if err := c.do(ctx, http.MethodPost, c.repoPath("/pulls"), p, &pr); err != nil {
		return nil, fmt.Errorf("create pull: %w", err)
	}
	return &pr, nil
}

// UpdatePull edits the title/body of an existing pull request.
func (c *Client) UpdatePull(ctx context.Context, number int, title, body string) (*PullRequest, error) {
	payload := map[string]string{"title": title, "body": body}
	var pr PullRequest
	if err := c.do(ctx, http.MethodPatch, c.repoPath(fmt.Sprintf("/pulls/%d", number)), payload, &pr); err != nil {
		return nil, fmt.Errorf("update pull %d: %w", number, err)
	}
	return &pr, nil
}

// ListPulls returns pull requests whose head is the given branch.
// state is "open", "closed", or "all".
func (c *Client) ListPulls(ctx context.Context, headBranch, state string) ([]PullRequest, error) {
	q := url.Values{}
	q.Set("head", c.owner+":"+headBranch)
	q.Set("state", state)

	var prs []PullRequest
	if err := c.do(ctx, http.MethodGet, c.repoPath("/pulls?"+q.Encode()), nil, &prs); err != nil {
		return nil, fmt.Errorf("list pulls: %w", err)
	}
	return prs, nil
}

// RequestReviewers asks the given users for review.
func (c *Client) RequestReviewers(ctx context.Context, number int, reviewers []string) error {
	if len(reviewers) == 0 {
		return nil
	}
	payload := map[string][]string{"reviewers": reviewers}
	err := c.do(ctx, http.MethodPost, c.repoPath(fmt.Sprintf("/pulls/%d/requested_reviewers", number)), payload, nil)
	if err != nil {
		return fmt.Errorf("request reviewers: %w", err)
	}
	return nil
}

// AddAssignees assigns users to the pull request's issue.
func (c *Client) AddAssignees(ctx context.Context, number int, assignees []string) error {
	if len(assignees) == 0 {
		return nil
	}
	payload := map[string][]string{"assignees": assignees}
	err := c.do(ctx, http.MethodPost, c.repoPath(fmt.Sprintf("/issues/%d/assignees", number)), payload, nil)
	if err != nil {
		return fmt.Errorf("add assignees: %w", err)
	}
	return nil
}

// DeleteBranch removes a remote branch. Deleting a branch that is already
// gone is not an error.
func (c *Client) DeleteBranch(ctx context.Context, branch string) error {
	path := c.repoPath("/git/refs/heads/" + url.PathEscape(branch))
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}
	// GitHub reports a missing ref as 422 "Reference does not exist".
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
		return nil
	}
	return fmt.Errorf("delete branch %s: %w", branch, err)
}

// Ping verifies the repository is reachable with the configured token.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.repoPath(""), nil, nil)
}
