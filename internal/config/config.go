// SPDX-License-Identifier: MIT

// Package config loads cabot configuration with precedence ENV > file > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the full runtime configuration.
type AppConfig struct {
	// Server
	ListenAddr string `yaml:"listen"`
	APIToken   string `yaml:"-"` // env only, never persisted
	DataDir    string `yaml:"data_dir"`
	StateDir   string `yaml:"state_dir"`

	// Repository
	RepoURL       string `yaml:"repo_url"`
	RepoOwner     string `yaml:"repo_owner"`
	RepoName      string `yaml:"repo_name"`
	BaseBranch    string `yaml:"base_branch"`
	SubmodulePath string `yaml:"submodule_path"`
	// SubmoduleBranch is the upstream branch pulled inside the submodule.
	SubmoduleBranch string `yaml:"submodule_branch"`
	// BundleFile is the PEM bundle inside the submodule used for diffing.
	BundleFile string `yaml:"bundle_file"`

	// Pull request
	UpdateBranch  string   `yaml:"update_branch"`
	PRTitle       string   `yaml:"pr_title"`
	PRBody        string   `yaml:"pr_body"`
	CommitMessage string   `yaml:"commit_message"`
	Reviewers     []string `yaml:"reviewers"`
	Assignees     []string `yaml:"assignees"`
	DeleteBranch  bool     `yaml:"delete_branch"`

	// Git identity
	GitAuthorName  string `yaml:"git_author_name"`
	GitAuthorEmail string `yaml:"git_author_email"`

	// Credentials (env only)
	GitHubToken   string `yaml:"-"`
	GitHubAPIBase string `yaml:"github_api_base"`
	GPGPrivateKey string `yaml:"-"`
	GPGPassphrase string `yaml:"-"`

	// Timeouts
	GitTimeout time.Duration `yaml:"git_timeout"`
	RunTimeout time.Duration `yaml:"run_timeout"`

	// Cache
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"-"`
	RedisDB       int    `yaml:"redis_db"`

	// Telemetry
	OTELEnabled  bool    `yaml:"otel_enabled"`
	OTELExporter string  `yaml:"otel_exporter"`
	OTELEndpoint string  `yaml:"otel_endpoint"`
	OTELSampling float64 `yaml:"otel_sampling"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Version is injected at load time, not read from file.
	Version string `yaml:"-"`
}

// defaults returns the baseline configuration, matching the original
// workflow's fixed values where the behavior is observable.
func defaults() AppConfig {
	return AppConfig{
		ListenAddr:      ":8080",
		DataDir:         "/var/lib/cabot",
		BaseBranch:      "main",
		SubmodulePath:   "mozilla-ca",
		SubmoduleBranch: "main",
		BundleFile:      "cacert.pem",
		UpdateBranch:    "cacert-updates",
		PRTitle:         "CA Cert updates",
		PRBody:          "Newest Mozilla CA cert",
		CommitMessage:   "Update Mozilla CA certs",
		Reviewers:       []string{"wjblanke", "emlowe"},
		DeleteBranch:    true,
		GitAuthorName:   "cabot",
		GitAuthorEmail:  "cabot@localhost",
		GitHubAPIBase:   "https://api.github.com",
		GitTimeout:      5 * time.Minute,
		RunTimeout:      15 * time.Minute,
		OTELExporter:    "grpc",
		OTELSampling:    1.0,
		LogLevel:        "info",
	}
}

// Loader loads configuration from an optional YAML file plus the environment.
type Loader struct {
	path    string
	version string
}

// NewLoader creates a config loader. path may be empty (env + defaults only).
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version}
}

// Load resolves the effective configuration: defaults, then file, then env.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()

	if l.path != "" {
		if err := mergeFile(&cfg, l.path); err != nil {
			return AppConfig{}, err
		}
	}
	mergeEnv(&cfg)
	cfg.Version = l.version

	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join(cfg.DataDir, "state")
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func mergeFile(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

func mergeEnv(cfg *AppConfig) {
	cfg.ListenAddr = ParseString("CABOT_LISTEN", cfg.ListenAddr)
	cfg.APIToken = ParseString("CABOT_API_TOKEN", cfg.APIToken)
	cfg.DataDir = ParseString("CABOT_DATA", cfg.DataDir)
	cfg.StateDir = ParseString("CABOT_STATE_DIR", cfg.StateDir)

	cfg.RepoURL = ParseString("CABOT_REPO_URL", cfg.RepoURL)
	cfg.RepoOwner = ParseString("CABOT_REPO_OWNER", cfg.RepoOwner)
	cfg.RepoName = ParseString("CABOT_REPO_NAME", cfg.RepoName)
	cfg.BaseBranch = ParseString("CABOT_BASE_BRANCH", cfg.BaseBranch)
	cfg.SubmodulePath = ParseString("CABOT_SUBMODULE_PATH", cfg.SubmodulePath)
	cfg.SubmoduleBranch = ParseString("CABOT_SUBMODULE_BRANCH", cfg.SubmoduleBranch)
	cfg.BundleFile = ParseString("CABOT_BUNDLE_FILE", cfg.BundleFile)

	cfg.UpdateBranch = ParseString("CABOT_UPDATE_BRANCH", cfg.UpdateBranch)
	cfg.PRTitle = ParseString("CABOT_PR_TITLE", cfg.PRTitle)
	cfg.PRBody = ParseString("CABOT_PR_BODY", cfg.PRBody)
	cfg.CommitMessage = ParseString("CABOT_COMMIT_MESSAGE", cfg.CommitMessage)
	cfg.Reviewers = parseList("CABOT_REVIEWERS", cfg.Reviewers)
	cfg.Assignees = parseList("CABOT_ASSIGNEES", cfg.Assignees)
	cfg.DeleteBranch = ParseBool("CABOT_DELETE_BRANCH", cfg.DeleteBranch)

	cfg.GitAuthorName = ParseString("CABOT_GIT_AUTHOR_NAME", cfg.GitAuthorName)
	cfg.GitAuthorEmail = ParseString("CABOT_GIT_AUTHOR_EMAIL", cfg.GitAuthorEmail)

	cfg.GitHubToken = ParseString("CABOT_GITHUB_TOKEN", cfg.GitHubToken)
	cfg.GitHubAPIBase = ParseString("CABOT_GITHUB_API", cfg.GitHubAPIBase)
	cfg.GPGPrivateKey = ParseString("CABOT_GPG_PRIVATE_KEY", cfg.GPGPrivateKey)
	cfg.GPGPassphrase = ParseString("CABOT_GPG_PASSPHRASE", cfg.GPGPassphrase)

	cfg.GitTimeout = ParseDuration("CABOT_GIT_TIMEOUT", cfg.GitTimeout)
	cfg.RunTimeout = ParseDuration("CABOT_RUN_TIMEOUT", cfg.RunTimeout)

	cfg.RedisAddr = ParseString("CABOT_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = ParseString("CABOT_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = ParseInt("CABOT_REDIS_DB", cfg.RedisDB)

	cfg.OTELEnabled = ParseBool("CABOT_OTEL_ENABLED", cfg.OTELEnabled)
	cfg.OTELExporter = ParseString("CABOT_OTEL_EXPORTER", cfg.OTELExporter)
	cfg.OTELEndpoint = ParseString("CABOT_OTEL_ENDPOINT", cfg.OTELEndpoint)
	cfg.OTELSampling = ParseFloat("CABOT_OTEL_SAMPLING", cfg.OTELSampling)

	cfg.LogLevel = ParseString("CABOT_LOG_LEVEL", cfg.LogLevel)
}

func parseList(key string, defaultValue []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WorkDir is the superproject checkout location under the data dir.
func (c AppConfig) WorkDir() string {
	return filepath.Join(c.DataDir, "repo")
}

// SubmoduleDir is the absolute path of the submodule inside the checkout.
func (c AppConfig) SubmoduleDir() string {
	return filepath.Join(c.WorkDir(), c.SubmodulePath)
}

// BundlePath is the absolute path of the PEM bundle inside the submodule.
func (c AppConfig) BundlePath() string {
	return filepath.Join(c.SubmoduleDir(), c.BundleFile)
}
