// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"time"

	"github.com/certbundle/cabot/internal/config"
	"github.com/certbundle/cabot/internal/github"
	"github.com/certbundle/cabot/internal/resilience"
	"github.com/certbundle/cabot/internal/signing"
	"github.com/certbundle/cabot/internal/store"
)

// Outcome classifies a finished run.
type Outcome string

const (
	OutcomeUpdated  Outcome = "updated"
	OutcomeNoChange Outcome = "no-change"
	OutcomeFailed   Outcome = "failed"
)

// Pipeline stage names, used for metrics and error reporting.
const (
	StageClone       = "clone"
	StageSync        = "sync"
	StageDiff        = "diff"
	StageCommit      = "commit"
	StagePush        = "push"
	StagePullRequest = "pull_request"
	StageCleanup     = "cleanup"
	StagePersist     = "persist"
)

// Status is the externally visible result of an update run.
type Status struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Outcome      Outcome   `json:"outcome"`
	Submodule    string    `json:"submodule"`
	OldCommit    string    `json:"old_commit,omitempty"`
	NewCommit    string    `json:"new_commit,omitempty"`
	CertsTotal   int       `json:"certs_total,omitempty"`
	CertsAdded   int       `json:"certs_added"`
	CertsRemoved int       `json:"certs_removed"`
	PRNumber     int       `json:"pr_number,omitempty"`
	PRURL        string    `json:"pr_url,omitempty"`
	Stage        string    `json:"stage,omitempty"` // stage that failed, empty on success
	Error        string    `json:"error,omitempty"`
}

// GitRepo is the slice of gitcli.Repo the pipeline uses.
type GitRepo interface {
	EnsureClone(ctx context.Context, baseBranch string) error
	SubmodulePull(ctx context.Context, submodulePath, branch string) error
	SubmoduleHead(ctx context.Context, submodulePath string) (string, error)
	CheckoutBranch(ctx context.Context, branch string) error
	Add(ctx context.Context, path string) error
	HasStagedChanges(ctx context.Context) (bool, error)
	ConfigSet(ctx context.Context, key, value string) error
	Commit(ctx context.Context, message string, sign bool) error
	Push(ctx context.Context, branch string) error
}

// PullRequester is the slice of the GitHub client the pipeline uses.
type PullRequester interface {
	CreatePull(ctx context.Context, p github.NewPull) (*github.PullRequest, error)
	UpdatePull(ctx context.Context, number int, title, body string) (*github.PullRequest, error)
	ListPulls(ctx context.Context, headBranch, state string) ([]github.PullRequest, error)
	RequestReviewers(ctx context.Context, number int, reviewers []string) error
	AddAssignees(ctx context.Context, number int, assignees []string) error
	DeleteBranch(ctx context.Context, branch string) error
}

// StateStore persists inter-run dispatch state.
type StateStore interface {
	SubmoduleCommit() (string, error)
	SetSubmoduleCommit(sha string) error
	BundleDigest() (string, error)
	SetBundleDigest(digest string) error
	PRNumber() (int, error)
	SetPRNumber(n int) error
}

// HistoryRecorder persists completed runs.
type HistoryRecorder interface {
	Record(ctx context.Context, run store.Run) error
}

// Deps holds all dependencies for one update run.
type Deps struct {
	Cfg     config.AppConfig
	Repo    GitRepo
	GitHub  PullRequester
	State   StateStore                 // optional
	History HistoryRecorder            // optional
	Keyring *signing.Keyring           // optional, enables signed commits
	Breaker *resilience.CircuitBreaker // optional, guards GitHub calls
	Clock   func() time.Time           // optional, defaults to time.Now
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

// gh wraps a GitHub call with the circuit breaker when one is configured.
func (d Deps) gh(fn func() error) error {
	if d.Breaker == nil {
		return fn()
	}
	return d.Breaker.Execute(fn)
}
