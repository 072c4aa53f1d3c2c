package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/busyloop/hu/pkg/engine"
)

func testLoader(t *testing.T, env map[string]string) (*Loader, string) {
	t.Helper()
	home := t.TempDir()
	getenv := func(k string) string { return env[k] }
	return NewLoader(WithHome(home), WithGetenv(getenv)), home
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, ".hu.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	l, home := testLoader(t, nil)

	cfg, err := l.Load(context.Background(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Remote != DefaultRemote {
		t.Errorf("Remote = %q, want %q", cfg.Remote, DefaultRemote)
	}
	if cfg.HooksDir != DefaultHooksDir || cfg.PolicyDir != DefaultPolicyDir {
		t.Errorf("unexpected dirs: %q %q", cfg.HooksDir, cfg.PolicyDir)
	}
	want := filepath.Join(home, ".local", "share", "hu", "journal.db")
	if !cfg.Journal.Enabled || cfg.Journal.Path != want {
		t.Errorf("Journal = %+v, want enabled at %s", cfg.Journal, want)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("log level = %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoader_DefaultPath(t *testing.T) {
	l, home := testLoader(t, nil)
	if got, want := l.DefaultPath(), filepath.Join(home, ".hu.yaml"); got != want {
		t.Errorf("DefaultPath() = %q, want %q", got, want)
	}

	l, _ = testLoader(t, map[string]string{EnvConfig: "/etc/hu.yaml"})
	if got := l.DefaultPath(); got != "/etc/hu.yaml" {
		t.Errorf("DefaultPath() = %q, want HU_CONFIG value", got)
	}
}

func TestLoader_LoadFile(t *testing.T) {
	l, home := testLoader(t, nil)
	path := writeConfig(t, home, `
remote: staging
disabled_policies:
  - production-config
journal:
  enabled: false
  history_limit: 5
telemetry:
  logging:
    level: debug
  tracing:
    enabled: true
    exporter: stdout
    export_timeout: 3s
`)

	cfg, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Remote != "staging" {
		t.Errorf("Remote = %q", cfg.Remote)
	}
	if len(cfg.DisabledPolicies) != 1 || cfg.DisabledPolicies[0] != "production-config" {
		t.Errorf("DisabledPolicies = %q", cfg.DisabledPolicies)
	}
	if cfg.Journal.Enabled || cfg.Journal.HistoryLimit != 5 {
		t.Errorf("Journal = %+v", cfg.Journal)
	}
	if cfg.HooksDir != DefaultHooksDir {
		t.Errorf("HooksDir default lost: %q", cfg.HooksDir)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Telemetry.Logging.Level)
	}
	if cfg.Telemetry.Logging.Format != "console" {
		t.Errorf("log format default lost: %q", cfg.Telemetry.Logging.Format)
	}
	if cfg.Telemetry.Tracing.ExportTimeout != 3*time.Second {
		t.Errorf("export timeout = %v", cfg.Telemetry.Tracing.ExportTimeout)
	}
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed yaml", body: "remote: [\n"},
		{name: "unknown key", body: "remtoe: heroku\n"},
		{name: "schema violation", body: "remote: a/b\n"},
		{name: "empty disabled policy", body: "disabled_policies:\n  - \"\"\n"},
		{name: "telemetry validation", body: "telemetry:\n  tracing:\n    enabled: true\n    exporter: otlp\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, home := testLoader(t, nil)
			path := writeConfig(t, home, tt.body)

			_, err := l.Load(context.Background(), path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !engine.IsConfig(err) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}

func TestLoader_Validate(t *testing.T) {
	l, home := testLoader(t, nil)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty remote", mutate: func(c *Config) { c.Remote = "" }, wantErr: true},
		{name: "remote with colon", mutate: func(c *Config) { c.Remote = "git:x" }, wantErr: true},
		{name: "bad api url", mutate: func(c *Config) { c.APIURL = "not a url" }, wantErr: true},
		{name: "journal without path", mutate: func(c *Config) { c.Journal.Path = "" }, wantErr: true},
		{name: "disabled journal without path", mutate: func(c *Config) {
			c.Journal.Enabled = false
			c.Journal.Path = ""
		}},
		{name: "history limit", mutate: func(c *Config) { c.Journal.HistoryLimit = 20000 }, wantErr: true},
		{name: "telemetry", mutate: func(c *Config) { c.Telemetry.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(home)
			tt.mutate(cfg)
			err := l.Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_ApplyEnv(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		wantEnabled bool
		wantPath    string
		wantLevel   string
	}{
		{
			name:        "journal path",
			env:         map[string]string{EnvJournal: "/tmp/j.db"},
			wantEnabled: true,
			wantPath:    "/tmp/j.db",
			wantLevel:   "warn",
		},
		{
			name:        "journal off",
			env:         map[string]string{EnvJournal: "OFF"},
			wantEnabled: false,
			wantLevel:   "warn",
		},
		{
			name:        "log level",
			env:         map[string]string{EnvLogLevel: "DEBUG"},
			wantEnabled: true,
			wantLevel:   "debug",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := testLoader(t, tt.env)
			cfg, err := l.Load(context.Background(), "")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Journal.Enabled != tt.wantEnabled {
				t.Errorf("Journal.Enabled = %v, want %v", cfg.Journal.Enabled, tt.wantEnabled)
			}
			if tt.wantPath != "" && cfg.Journal.Path != tt.wantPath {
				t.Errorf("Journal.Path = %q, want %q", cfg.Journal.Path, tt.wantPath)
			}
			if cfg.Telemetry.Logging.Level != tt.wantLevel {
				t.Errorf("level = %q, want %q", cfg.Telemetry.Logging.Level, tt.wantLevel)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve("/repo", ".hu/hooks"); got != "/repo/.hu/hooks" {
		t.Errorf("Resolve relative = %q", got)
	}
	if got := Resolve("/repo", "/abs/hooks"); got != "/abs/hooks" {
		t.Errorf("Resolve absolute = %q", got)
	}
	if got := Resolve("/repo", ""); got != "" {
		t.Errorf("Resolve empty = %q", got)
	}
}
