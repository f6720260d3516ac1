// SPDX-License-Identifier: MIT

package gitcli

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Repo wraps Runner operations against one superproject checkout.
type Repo struct {
	runner  *Runner
	workDir string
	repoURL string
	token   string
}

// NewRepo binds a runner to a checkout directory and its origin URL.
// token, when set, authenticates fetch and push over HTTPS and is never
// written to git config or logged.
func NewRepo(runner *Runner, workDir, repoURL, token string) *Repo {
	return &Repo{runner: runner, workDir: workDir, repoURL: repoURL, token: token}
}

// WorkDir returns the checkout directory.
func (r *Repo) WorkDir() string { return r.workDir }

// EnsureClone makes sure the superproject exists at workDir with all
// submodules initialised recursively and full history, then resets it to
// the tip of origin/<baseBranch>. Matches a fresh recursive checkout.
func (r *Repo) EnsureClone(ctx context.Context, baseBranch string) error {
	if _, err := os.Stat(filepath.Join(r.workDir, ".git")); err != nil {
		if err := os.MkdirAll(filepath.Dir(r.workDir), 0o755); err != nil {
			return fmt.Errorf("create work dir parent: %w", err)
		}
		_, err := r.runner.Run(ctx, "",
			"clone", "--recurse-submodules", "--branch", baseBranch,
			r.authURL(), r.workDir)
		if err != nil {
			return fmt.Errorf("clone: %w", err)
		}
		return nil
	}

	if _, err := r.runner.Run(ctx, r.workDir, "fetch", r.authURL(), baseBranch); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if _, err := r.runner.Run(ctx, r.workDir, "checkout", baseBranch); err != nil {
		return fmt.Errorf("checkout %s: %w", baseBranch, err)
	}
	if _, err := r.runner.Run(ctx, r.workDir, "reset", "--hard", "FETCH_HEAD"); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if _, err := r.runner.Run(ctx, r.workDir, "submodule", "update", "--init", "--recursive"); err != nil {
		return fmt.Errorf("submodule update: %w", err)
	}
	return nil
}

// SubmodulePull runs `git pull origin <branch>` inside the submodule
// directory, moving the submodule working tree to the upstream tip.
func (r *Repo) SubmodulePull(ctx context.Context, submodulePath, branch string) error {
	dir := filepath.Join(r.workDir, submodulePath)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("submodule dir %q: %w", submodulePath, err)
	}
	// Submodules are checked out detached; land the pull on a local branch.
	if _, err := r.runner.Run(ctx, dir, "checkout", branch); err != nil {
		return fmt.Errorf("submodule checkout %s: %w", branch, err)
	}
	if _, err := r.runner.Run(ctx, dir, "pull", "origin", branch); err != nil {
		return fmt.Errorf("submodule pull: %w", err)
	}
	return nil
}

// SubmoduleHead returns the submodule's current HEAD commit.
func (r *Repo) SubmoduleHead(ctx context.Context, submodulePath string) (string, error) {
	dir := filepath.Join(r.workDir, submodulePath)
	out, err := r.runner.Run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("rev-parse submodule HEAD: %w", err)
	}
	return out, nil
}

// CheckoutBranch creates or resets a local branch at the current HEAD.
func (r *Repo) CheckoutBranch(ctx context.Context, branch string) error {
	if _, err := r.runner.Run(ctx, r.workDir, "checkout", "-B", branch); err != nil {
		return fmt.Errorf("checkout -B %s: %w", branch, err)
	}
	return nil
}

// Add stages a path in the superproject.
func (r *Repo) Add(ctx context.Context, path string) error {
	if _, err := r.runner.Run(ctx, r.workDir, "add", path); err != nil {
		return fmt.Errorf("add %s: %w", path, err)
	}
	return nil
}

// HasStagedChanges reports whether the index differs from HEAD.
func (r *Repo) HasStagedChanges(ctx context.Context) (bool, error) {
	code, err := r.runner.ExitCode(ctx, r.workDir, "diff", "--cached", "--quiet")
	if err != nil {
		return false, fmt.Errorf("diff --cached: %w", err)
	}
	return code != 0, nil
}

// ConfigSet writes a repo-local git configuration value.
func (r *Repo) ConfigSet(ctx context.Context, key, value string) error {
	if _, err := r.runner.Run(ctx, r.workDir, "config", key, value); err != nil {
		return fmt.Errorf("config %s: %w", key, err)
	}
	return nil
}

// Commit creates a commit; when sign is true the commit is GPG-signed
// (`-S`), relying on repo-local signing configuration.
func (r *Repo) Commit(ctx context.Context, message string, sign bool) error {
	args := []string{"commit", "-m", message}
	if sign {
		args = append(args, "-S")
	}
	if _, err := r.runner.Run(ctx, r.workDir, args...); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Head returns the superproject HEAD commit.
func (r *Repo) Head(ctx context.Context) (string, error) {
	out, err := r.runner.Run(ctx, r.workDir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("rev-parse HEAD: %w", err)
	}
	return out, nil
}

// Push pushes the given local branch to origin under the same name.
// force-with-lease keeps a stale update branch from blocking a new run
// without clobbering pushes cabot did not make.
func (r *Repo) Push(ctx context.Context, branch string) error {
	_, err := r.runner.Run(ctx, r.workDir,
		"push", "--force-with-lease", r.authURL(),
		fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	if err != nil {
		return fmt.Errorf("push %s: %w", branch, err)
	}
	return nil
}

// authURL embeds the token into an HTTPS remote URL. SSH and tokenless
// URLs pass through unchanged.
func (r *Repo) authURL() string {
	if r.token == "" {
		return r.repoURL
	}
	u, err := url.Parse(r.repoURL)
	if err != nil || !strings.HasPrefix(u.Scheme, "http") {
		return r.repoURL
	}
	u.User = url.UserPassword("x-access-token", r.token)
	return u.String()
}
