// SPDX-License-Identifier: MIT

// Package jobs runs the CA bundle update pipeline: sync the submodule to
// its upstream tip, diff the bundle, create a signed commit, push the
// update branch, and open a pull request.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/certbundle/cabot/internal/bundle"
	"github.com/certbundle/cabot/internal/github"
	"github.com/certbundle/cabot/internal/log"
	"github.com/certbundle/cabot/internal/metrics"
	"github.com/certbundle/cabot/internal/state"
	"github.com/certbundle/cabot/internal/store"
	"github.com/google/uuid"
)

// expiryWindow flags roots that leave the bundle's validity soon enough to
// matter in a PR review.
const expiryWindow = 90 * 24 * time.Hour

// Update performs one full update run. The returned Status is non-nil even
// on failure so callers can report partial progress.
func Update(ctx context.Context, deps Deps) (*Status, error) {
	runID := log.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = log.ContextWithRunID(ctx, runID)
	}
	logger := log.WithComponentFromContext(ctx, "jobs")

	status := &Status{
		RunID:     runID,
		StartedAt: deps.now(),
		Submodule: deps.Cfg.SubmodulePath,
	}
	logger.Info().
		Str("event", "update.start").
		Str(log.FieldSubmodule, deps.Cfg.SubmodulePath).
		Msg("starting update run")

	err := run(ctx, deps, status)
	status.FinishedAt = deps.now()

	if err != nil {
		status.Outcome = OutcomeFailed
		status.Error = err.Error()
		metrics.IncStageFailure(status.Stage)
	}
	metrics.RecordRun(string(status.Outcome), status.FinishedAt.Sub(status.StartedAt).Seconds())

	finish(ctx, deps, status)

	evt := logger.Info()
	if err != nil {
		evt = logger.Error().Err(err)
	}
	evt.Str("event", "update.finished").
		Str(log.FieldOutcome, string(status.Outcome)).
		Int(log.FieldCertsAdded, status.CertsAdded).
		Int(log.FieldCertsRemoved, status.CertsRemoved).
		Msg("update run finished")

	return status, err
}

func run(ctx context.Context, deps Deps, status *Status) error {
	cfg := deps.Cfg
	logger := log.WithComponentFromContext(ctx, "jobs")

	// Stage: clone. Full recursive checkout reset to the base branch tip.
	status.Stage = StageClone
	if err := deps.Repo.EnsureClone(ctx, cfg.BaseBranch); err != nil {
		return fmt.Errorf("%s: %w", StageClone, err)
	}

	oldCommit, err := deps.Repo.SubmoduleHead(ctx, cfg.SubmodulePath)
	if err != nil {
		return fmt.Errorf("%s: %w", StageClone, err)
	}
	status.OldCommit = oldCommit

	// The pre-pull bundle is the diff baseline. A missing or unparsable
	// bundle is tolerated here: the first run after vendoring has nothing
	// to compare against.
	oldBundle, err := bundle.Load(cfg.BundlePath())
	if err != nil {
		logger.Warn().Err(err).
			Str(log.FieldPath, cfg.BundlePath()).
			Msg("no baseline bundle, diff will report all roots as added")
		oldBundle = nil
	}

	// Stage: sync. `git pull origin <branch>` inside the submodule.
	status.Stage = StageSync
	if err := deps.Repo.SubmodulePull(ctx, cfg.SubmodulePath, cfg.SubmoduleBranch); err != nil {
		return fmt.Errorf("%s: %w", StageSync, err)
	}
	newCommit, err := deps.Repo.SubmoduleHead(ctx, cfg.SubmodulePath)
	if err != nil {
		return fmt.Errorf("%s: %w", StageSync, err)
	}
	status.NewCommit = newCommit

	// Stage: diff. Parse the refreshed bundle and compare root sets.
	status.Stage = StageDiff
	newBundle, err := bundle.Load(cfg.BundlePath())
	if err != nil {
		return fmt.Errorf("%s: %w", StageDiff, err)
	}
	diff := bundle.Compare(oldBundle, newBundle)
	digest := newBundle.Digest()
	status.CertsAdded = len(diff.Added)
	status.CertsRemoved = len(diff.Removed)

	info, err := newBundle.Inspect(deps.now(), expiryWindow)
	if err != nil {
		return fmt.Errorf("%s: %w", StageDiff, err)
	}
	status.CertsTotal = info.Certs
	metrics.RecordBundle(info.Certs, info.Expired)
	metrics.RecordDiff(status.CertsAdded, status.CertsRemoved)

	if newCommit == oldCommit {
		status.Stage = ""
		status.Outcome = OutcomeNoChange
		logger.Info().
			Str("event", "update.no_change").
			Str(log.FieldCommit, newCommit).
			Msg("submodule already at upstream tip")
		return nil
	}

	// Stage: commit. Land the submodule pointer on the update branch.
	status.Stage = StageCommit
	if err := prepareCommit(ctx, deps); err != nil {
		return fmt.Errorf("%s: %w", StageCommit, err)
	}

	staged, err := deps.Repo.HasStagedChanges(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", StageCommit, err)
	}
	if !staged {
		// Pointer moved but the superproject already records the new
		// commit, e.g. a previous run committed without opening a PR.
		status.Stage = ""
		status.Outcome = OutcomeNoChange
		return nil
	}
	if err := deps.Repo.Commit(ctx, cfg.CommitMessage, deps.Keyring != nil); err != nil {
		return fmt.Errorf("%s: %w", StageCommit, err)
	}

	// Stage: cleanup. Drop the remote update branch if its previous PR is
	// merged or closed, so the new push starts a fresh PR.
	if cfg.DeleteBranch {
		status.Stage = StageCleanup
		if err := cleanupStaleBranch(ctx, deps); err != nil {
			return fmt.Errorf("%s: %w", StageCleanup, err)
		}
	}

	// Stage: push.
	status.Stage = StagePush
	if err := deps.Repo.Push(ctx, cfg.UpdateBranch); err != nil {
		return fmt.Errorf("%s: %w", StagePush, err)
	}

	// Stage: pull request.
	status.Stage = StagePullRequest
	pr, err := ensurePull(ctx, deps, diff, newCommit, digest)
	if err != nil {
		return fmt.Errorf("%s: %w", StagePullRequest, err)
	}
	status.PRNumber = pr.Number
	status.PRURL = pr.HTMLURL

	// Stage: persist state for the next dispatch.
	status.Stage = StagePersist
	if deps.State != nil {
		if err := deps.State.SetSubmoduleCommit(newCommit); err != nil {
			return fmt.Errorf("%s: %w", StagePersist, err)
		}
		if err := deps.State.SetBundleDigest(digest); err != nil {
			return fmt.Errorf("%s: %w", StagePersist, err)
		}
		if err := deps.State.SetPRNumber(pr.Number); err != nil {
			return fmt.Errorf("%s: %w", StagePersist, err)
		}
	}

	status.Stage = ""
	status.Outcome = OutcomeUpdated
	return nil
}

// prepareCommit puts HEAD on the update branch, stages the submodule
// pointer, and applies the git identity and signing configuration.
func prepareCommit(ctx context.Context, deps Deps) error {
	cfg := deps.Cfg

	if err := deps.Repo.CheckoutBranch(ctx, cfg.UpdateBranch); err != nil {
		return err
	}
	if err := deps.Repo.Add(ctx, cfg.SubmodulePath); err != nil {
		return err
	}

	name, email := cfg.GitAuthorName, cfg.GitAuthorEmail
	if deps.Keyring != nil {
		// The signing key's identity must match the commit author or
		// GitHub will not show the commit as verified.
		if deps.Keyring.Info.Name != "" {
			name = deps.Keyring.Info.Name
		}
		if deps.Keyring.Info.Email != "" {
			email = deps.Keyring.Info.Email
		}
	}
	if err := deps.Repo.ConfigSet(ctx, "user.name", name); err != nil {
		return err
	}
	if err := deps.Repo.ConfigSet(ctx, "user.email", email); err != nil {
		return err
	}

	if deps.Keyring != nil {
		if err := deps.Repo.ConfigSet(ctx, "user.signingkey", deps.Keyring.Info.KeyID); err != nil {
			return err
		}
		if err := deps.Repo.ConfigSet(ctx, "gpg.program", deps.Keyring.Wrapper); err != nil {
			return err
		}
		if err := deps.Repo.ConfigSet(ctx, "commit.gpgsign", "true"); err != nil {
			return err
		}
	}
	return nil
}

// cleanupStaleBranch deletes the remote update branch when every PR from it
// is merged or closed. An open PR keeps the branch: the new push updates it.
func cleanupStaleBranch(ctx context.Context, deps Deps) error {
	cfg := deps.Cfg
	logger := log.WithComponentFromContext(ctx, "jobs")

	var open []github.PullRequest
	if err := deps.gh(func() error {
		var err error
		open, err = deps.GitHub.ListPulls(ctx, cfg.UpdateBranch, "open")
		return err
	}); err != nil {
		return err
	}
	if len(open) > 0 {
		return nil
	}

	if deps.State != nil {
		if _, err := deps.State.PRNumber(); errors.Is(err, state.ErrNotFound) {
			// Never opened a PR before, nothing to clean up.
			return nil
		}
	}

	logger.Info().
		Str("event", "update.branch_cleanup").
		Str(log.FieldBranch, cfg.UpdateBranch).
		Msg("deleting stale update branch")
	return deps.gh(func() error {
		return deps.GitHub.DeleteBranch(ctx, cfg.UpdateBranch)
	})
}

// ensurePull opens the pull request, or refreshes the body of an already
// open one. Reviewer and assignee failures are non-fatal: the PR exists,
// which is what the run promises.
func ensurePull(ctx context.Context, deps Deps, diff bundle.Diff, newCommit, digest string) (*github.PullRequest, error) {
	cfg := deps.Cfg
	logger := log.WithComponentFromContext(ctx, "jobs")

	body := cfg.PRBody
	if s := diff.Summary(); s != "" {
		body = body + "\n\n" + s
	}

	var open []github.PullRequest
	if err := deps.gh(func() error {
		var err error
		open, err = deps.GitHub.ListPulls(ctx, cfg.UpdateBranch, "open")
		return err
	}); err != nil {
		return nil, err
	}

	if len(open) > 0 {
		existing := open[0]
		if pullCurrent(deps, newCommit, digest) {
			logger.Info().
				Str("event", "update.pr_current").
				Int(log.FieldPRNumber, existing.Number).
				Msg("open pull request already covers this upstream commit")
			return &existing, nil
		}
		var pr *github.PullRequest
		if err := deps.gh(func() error {
			var err error
			pr, err = deps.GitHub.UpdatePull(ctx, existing.Number, cfg.PRTitle, body)
			return err
		}); err != nil {
			return nil, err
		}
		logger.Info().
			Str("event", "update.pr_refreshed").
			Int(log.FieldPRNumber, pr.Number).
			Msg("existing pull request updated")
		return pr, nil
	}

	var pr *github.PullRequest
	if err := deps.gh(func() error {
		var err error
		pr, err = deps.GitHub.CreatePull(ctx, github.NewPull{
			Title: cfg.PRTitle,
			Head:  cfg.UpdateBranch,
			Base:  cfg.BaseBranch,
			Body:  body,
		})
		return err
	}); err != nil {
		return nil, err
	}
	logger.Info().
		Str("event", "update.pr_opened").
		Int(log.FieldPRNumber, pr.Number).
		Str("url", pr.HTMLURL).
		Msg("pull request opened")

	if err := deps.gh(func() error {
		return deps.GitHub.RequestReviewers(ctx, pr.Number, cfg.Reviewers)
	}); err != nil {
		logger.Warn().Err(err).Int(log.FieldPRNumber, pr.Number).Msg("requesting reviewers failed")
	}
	if err := deps.gh(func() error {
		return deps.GitHub.AddAssignees(ctx, pr.Number, cfg.Assignees)
	}); err != nil {
		logger.Warn().Err(err).Int(log.FieldPRNumber, pr.Number).Msg("adding assignees failed")
	}
	return pr, nil
}

// pullCurrent reports whether the recorded dispatch state already covers the
// pulled submodule commit and bundle content. A re-dispatch then leaves the
// open pull request's body alone instead of issuing a no-op refresh.
func pullCurrent(deps Deps, newCommit, digest string) bool {
	if deps.State == nil {
		return false
	}
	lastCommit, err := deps.State.SubmoduleCommit()
	if err != nil || lastCommit != newCommit {
		return false
	}
	lastDigest, err := deps.State.BundleDigest()
	return err == nil && lastDigest == digest
}

// finish records history and the on-disk run summary. Failures here are
// logged, not returned: the run's outcome is already decided.
func finish(ctx context.Context, deps Deps, status *Status) {
	logger := log.WithComponentFromContext(ctx, "jobs")

	if deps.History != nil {
		rec := store.Run{
			ID:           status.RunID,
			StartedAt:    status.StartedAt,
			FinishedAt:   status.FinishedAt,
			Outcome:      string(status.Outcome),
			CertsAdded:   status.CertsAdded,
			CertsRemoved: status.CertsRemoved,
			PRNumber:     status.PRNumber,
			PRURL:        status.PRURL,
			Error:        status.Error,
		}
		if err := deps.History.Record(ctx, rec); err != nil {
			logger.Error().Err(err).Str("event", "update.history_failed").Msg("recording run history failed")
		}
	}

	if deps.Cfg.DataDir != "" {
		if err := writeSummary(ctx, deps.Cfg.DataDir, status); err != nil {
			logger.Error().Err(err).Str("event", "update.summary_failed").Msg("writing run summary failed")
		}
	}
}
