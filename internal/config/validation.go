// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

var (
	ErrMissingRepo      = errors.New("repository URL is required")
	ErrMissingOwner     = errors.New("repository owner and name are required")
	ErrInvalidSubmodule = errors.New("submodule path must be a clean relative path")
)

// Validate checks structural invariants of the configuration. Credential
// presence is checked at dispatch time, not here, so a daemon can start
// before secrets are injected.
func (c AppConfig) Validate() error {
	if c.RepoURL != "" {
		u, err := url.Parse(c.RepoURL)
		if err != nil {
			return fmt.Errorf("invalid repo URL %q: %w", c.RepoURL, err)
		}
		if u.Scheme != "https" && u.Scheme != "http" && u.Scheme != "ssh" {
			return fmt.Errorf("unsupported repo URL scheme %q", u.Scheme)
		}
	}

	if err := validateRelPath(c.SubmodulePath); err != nil {
		return err
	}
	if err := validateRelPath(c.BundleFile); err != nil {
		return err
	}

	if c.BaseBranch == "" {
		return errors.New("base branch must not be empty")
	}
	if c.UpdateBranch == "" {
		return errors.New("update branch must not be empty")
	}
	if c.UpdateBranch == c.BaseBranch {
		return fmt.Errorf("update branch %q must differ from base branch", c.UpdateBranch)
	}
	return nil
}

// ValidateForDispatch adds the checks that only matter once a run starts.
func (c AppConfig) ValidateForDispatch() error {
	if c.RepoURL == "" {
		return ErrMissingRepo
	}
	if c.RepoOwner == "" || c.RepoName == "" {
		return ErrMissingOwner
	}
	if c.GitHubToken == "" {
		return errors.New("CABOT_GITHUB_TOKEN is required to open pull requests")
	}
	return c.Validate()
}

// validateRelPath rejects absolute paths and traversal outside the checkout.
func validateRelPath(p string) error {
	if p == "" {
		return ErrInvalidSubmodule
	}
	if strings.HasPrefix(p, "/") {
		return ErrInvalidSubmodule
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") || clean == "." {
		return ErrInvalidSubmodule
	}
	return nil
}
