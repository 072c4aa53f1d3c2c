package config

import (
	"path/filepath"

	"github.com/busyloop/hu/pkg/telemetry"
)

// Default locations, relative to the repository root unless noted.
const (
	DefaultRemote    = "heroku"
	DefaultHooksDir  = ".hu/hooks"
	DefaultPolicyDir = ".hu/policy"
	DefaultEnvIgnore = ".hu/env_ignore"
	DefaultAPIURL    = "https://api.heroku.com"
	DefaultGitHubURL = "https://api.github.com"
)

// Environment variables read by Load and ApplyEnv.
const (
	EnvConfig   = "HU_CONFIG"
	EnvJournal  = "HU_JOURNAL"
	EnvLogLevel = "LOG_LEVEL"
)

// Config is the decoded form of ~/.hu.yaml.
type Config struct {
	// Remote is the git remote that points at the staging app.
	Remote string `yaml:"remote" validate:"required,excludesall=/:"`

	// HooksDir holds pre_release, changelog and changelog.star.
	HooksDir string `yaml:"hooks_dir" validate:"required"`

	// PolicyDir holds additional *.rego release policies.
	PolicyDir string `yaml:"policy_dir" validate:"required"`

	// DisabledPolicies names built-in or repository policies to skip.
	DisabledPolicies []string `yaml:"disabled_policies" validate:"dive,required"`

	// EnvIgnore lists config var names excluded from the missing config
	// warning, one per line.
	EnvIgnore string `yaml:"env_ignore" validate:"required"`

	// APIURL is the platform API base URL.
	APIURL string `yaml:"api_url" validate:"required,url"`

	// GitHubAPIURL is the commit status API base URL.
	GitHubAPIURL string `yaml:"github_api_url" validate:"required,url"`

	Journal JournalConfig `yaml:"journal"`

	Telemetry *telemetry.Config `yaml:"telemetry" validate:"required"`
}

// JournalConfig configures the local release journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the sqlite database file. ":memory:" keeps it in process.
	Path string `yaml:"path" validate:"required_if=Enabled true"`

	// HistoryLimit caps rows printed by hu history.
	HistoryLimit int `yaml:"history_limit" validate:"gte=0,lte=10000"`
}

// Default returns the configuration used when no file exists.
func Default(home string) *Config {
	return &Config{
		Remote:       DefaultRemote,
		HooksDir:     DefaultHooksDir,
		PolicyDir:    DefaultPolicyDir,
		EnvIgnore:    DefaultEnvIgnore,
		APIURL:       DefaultAPIURL,
		GitHubAPIURL: DefaultGitHubURL,
		Journal: JournalConfig{
			Enabled:      true,
			Path:         filepath.Join(home, ".local", "share", "hu", "journal.db"),
			HistoryLimit: 20,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Resolve returns p anchored at root unless it is already absolute.
func Resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
