// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("", "v1.0.0-test").Load()
	require.NoError(t, err)

	// The PR metadata defaults are contractual: downstream reviewers key
	// off the exact title.
	assert.Equal(t, "CA Cert updates", cfg.PRTitle)
	assert.Equal(t, "Newest Mozilla CA cert", cfg.PRBody)
	assert.Equal(t, "Update Mozilla CA certs", cfg.CommitMessage)
	assert.Equal(t, []string{"wjblanke", "emlowe"}, cfg.Reviewers)
	assert.True(t, cfg.DeleteBranch)

	assert.Equal(t, "main", cfg.BaseBranch)
	assert.Equal(t, "mozilla-ca", cfg.SubmodulePath)
	assert.Equal(t, "cacert-updates", cfg.UpdateBranch)
	assert.Equal(t, "v1.0.0-test", cfg.Version)
	assert.Equal(t, filepath.Join(cfg.DataDir, "state"), cfg.StateDir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9999\"\npr_title: \"from file\"\n"), 0o644))

	t.Setenv("CABOT_PR_TITLE", "from env")

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "from env", cfg.PRTitle)
}

func TestLoadReviewersFromEnv(t *testing.T) {
	t.Setenv("CABOT_REVIEWERS", "alice, bob ,")
	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Reviewers)

	t.Setenv("CABOT_REVIEWERS", " ")
	cfg, err = NewLoader("", "test").Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Reviewers)
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o644))

	_, err := NewLoader(path, "test").Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := defaults()
	assert.NoError(t, base.Validate())

	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"bad scheme", func(c *AppConfig) { c.RepoURL = "ftp://example.com/repo.git" }},
		{"absolute submodule", func(c *AppConfig) { c.SubmodulePath = "/etc" }},
		{"traversal submodule", func(c *AppConfig) { c.SubmodulePath = "../outside" }},
		{"traversal bundle", func(c *AppConfig) { c.BundleFile = "../../secret" }},
		{"empty base branch", func(c *AppConfig) { c.BaseBranch = "" }},
		{"same branches", func(c *AppConfig) { c.UpdateBranch = c.BaseBranch }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateForDispatch(t *testing.T) {
	cfg := defaults()
	assert.ErrorIs(t, cfg.ValidateForDispatch(), ErrMissingRepo)

	cfg.RepoURL = "https://github.com/org/repo.git"
	assert.ErrorIs(t, cfg.ValidateForDispatch(), ErrMissingOwner)

	cfg.RepoOwner = "org"
	cfg.RepoName = "repo"
	assert.Error(t, cfg.ValidateForDispatch()) // still no token

	cfg.GitHubToken = "ghs_test"
	assert.NoError(t, cfg.ValidateForDispatch())
}

func TestPathHelpers(t *testing.T) {
	cfg := defaults()
	cfg.DataDir = "/data"

	assert.Equal(t, filepath.Join("/data", "repo"), cfg.WorkDir())
	assert.Equal(t, filepath.Join("/data", "repo", "mozilla-ca"), cfg.SubmoduleDir())
	assert.Equal(t, filepath.Join("/data", "repo", "mozilla-ca", "cacert.pem"), cfg.BundlePath())
}

func TestHolderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pr_body: \"first\"\n"), 0o644))

	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader, path)
	assert.Equal(t, "first", h.Current().PRBody)

	require.NoError(t, os.WriteFile(path, []byte("pr_body: \"second\"\n"), 0o644))
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, "second", h.Current().PRBody)

	// A broken file keeps the old config.
	require.NoError(t, os.WriteFile(path, []byte("pr_body: [broken"), 0o644))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, "second", h.Current().PRBody)
}

func TestHolderWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pr_body: \"first\"\n"), 0o644))

	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader, path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte("pr_body: \"watched\"\n"), 0o644))
	require.Eventually(t, func() bool {
		return h.Current().PRBody == "watched"
	}, 5*time.Second, 25*time.Millisecond)
}

func TestParseHelpers(t *testing.T) {
	t.Setenv("CABOT_TEST_INT", "42")
	assert.Equal(t, 42, ParseInt("CABOT_TEST_INT", 1))
	t.Setenv("CABOT_TEST_INT", "nope")
	assert.Equal(t, 1, ParseInt("CABOT_TEST_INT", 1))

	t.Setenv("CABOT_TEST_BOOL", "true")
	assert.True(t, ParseBool("CABOT_TEST_BOOL", false))

	t.Setenv("CABOT_TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, ParseDuration("CABOT_TEST_DUR", time.Minute))

	t.Setenv("CABOT_TEST_FLOAT", "0.25")
	assert.Equal(t, 0.25, ParseFloat("CABOT_TEST_FLOAT", 1.0))
	t.Setenv("CABOT_TEST_FLOAT", "x")
	assert.Equal(t, 1.0, ParseFloat("CABOT_TEST_FLOAT", 1.0))
}
