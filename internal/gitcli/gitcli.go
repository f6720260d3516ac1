// SPDX-License-Identifier: MIT

// Package gitcli drives the git binary for the update job: superproject
// checkout, submodule pull, signed commit, branch push. Everything runs
// through one Runner so command logging and credential scrubbing stay in
// one place.
package gitcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/certbundle/cabot/internal/log"
)

// Runner executes git commands with a per-command timeout.
type Runner struct {
	binPath string
	timeout time.Duration
	env     []string // extra environment, appended to os.Environ()

	// secrets are scrubbed from command output and errors before they
	// reach logs or callers.
	secrets []string
}

// Option configures a Runner.
type Option func(*Runner)

// WithBinPath overrides the git binary path.
func WithBinPath(path string) Option {
	return func(r *Runner) { r.binPath = path }
}

// WithTimeout sets the per-command timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithEnv appends environment variables (KEY=VALUE) to every command.
func WithEnv(env ...string) Option {
	return func(r *Runner) { r.env = append(r.env, env...) }
}

// WithSecret registers a string to scrub from output and error messages.
func WithSecret(secret string) Option {
	return func(r *Runner) {
		if secret != "" {
			r.secrets = append(r.secrets, secret)
		}
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		binPath: "git",
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes git with args inside dir and returns trimmed stdout.
// Stderr is folded into the returned error on failure.
func (r *Runner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.binPath, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), r.env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := log.WithComponentFromContext(ctx, "git")
	logger.Debug().
		Str("event", "git.exec").
		Str("dir", dir).
		Str("args", r.scrub(strings.Join(args, " "))).
		Msg("running git")

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("git %s: %w", firstArg(args), ctx.Err())
		}
		return "", &CommandError{
			Args:   args,
			Stderr: r.scrub(strings.TrimSpace(stderr.String())),
			Err:    err,
		}
	}
	return strings.TrimSpace(r.scrub(stdout.String())), nil
}

// ExitCode runs git and returns the process exit code instead of an error
// for ordinary non-zero exits. Used for porcelain commands like
// `diff --cached --quiet` where exit 1 is a result, not a failure.
func (r *Runner) ExitCode(ctx context.Context, dir string, args ...string) (int, error) {
	_, err := r.Run(ctx, dir, args...)
	if err == nil {
		return 0, nil
	}
	var cerr *CommandError
	if errors.As(err, &cerr) {
		var exitErr *exec.ExitError
		if errors.As(cerr.Err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
	}
	return -1, err
}

// Version reports the installed git version, for health checks.
func (r *Runner) Version(ctx context.Context) (string, error) {
	return r.Run(ctx, "", "version")
}

func (r *Runner) scrub(s string) string {
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, "***")
	}
	return s
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// CommandError carries the scrubbed stderr of a failed git invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("git %s: %v: %s", firstArg(e.Args), e.Err, e.Stderr)
	}
	return fmt.Sprintf("git %s: %v", firstArg(e.Args), e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
