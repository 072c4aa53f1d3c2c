package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/busyloop/hu/pkg/engine"
)

// Loader reads ~/.hu.yaml, checks it against the "hu" CUE schema and the
// struct tags, then applies environment overrides.
type Loader struct {
	schemas  *SchemaRegistry
	validate *validator.Validate
	getenv   func(string) string
	home     string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithGetenv replaces os.Getenv.
func WithGetenv(getenv func(string) string) LoaderOption {
	return func(l *Loader) { l.getenv = getenv }
}

// WithHome overrides the home directory used for default paths.
func WithHome(home string) LoaderOption {
	return func(l *Loader) { l.home = home }
}

// WithSchemas uses a caller supplied registry.
func WithSchemas(sr *SchemaRegistry) LoaderOption {
	return func(l *Loader) { l.schemas = sr }
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		validate: validator.New(),
		getenv:   os.Getenv,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.schemas == nil {
		l.schemas = NewSchemaRegistry()
	}
	if l.home == "" {
		l.home, _ = os.UserHomeDir()
	}
	return l
}

// Load is NewLoader().Load.
func Load(ctx context.Context, path string) (*Config, error) {
	return NewLoader().Load(ctx, path)
}

// DefaultPath returns $HU_CONFIG or ~/.hu.yaml.
func (l *Loader) DefaultPath() string {
	if p := l.getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(l.home, ".hu.yaml")
}

// Load reads path. An empty path means DefaultPath; a missing file yields
// the defaults.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		path = l.DefaultPath()
	}
	cfg := Default(l.home)

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		data = nil
	case err != nil:
		return nil, engine.NewConfigError("failed to read configuration", err).
			WithOperation("config.load").
			WithDetail("path", path)
	}

	if len(bytes.TrimSpace(data)) > 0 {
		if err := l.decode(ctx, data, cfg); err != nil {
			return nil, engine.NewConfigError("invalid configuration file "+path, err).
				WithOperation("config.load").
				WithDetail("path", path)
		}
	}

	l.ApplyEnv(cfg)

	if err := l.Validate(cfg); err != nil {
		return nil, engine.NewConfigError("invalid configuration", err).
			WithOperation("config.validate").
			WithDetail("path", path)
	}
	return cfg, nil
}

func (l *Loader) decode(ctx context.Context, data []byte, cfg *Config) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse yaml: %w", err)
	}
	if err := l.schemas.ValidateAgainstSchema(ctx, SchemaConfig, raw); err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	return nil
}

// ApplyEnv applies HU_JOURNAL and LOG_LEVEL. HU_JOURNAL=off disables the
// journal; any other value is the database path.
func (l *Loader) ApplyEnv(cfg *Config) {
	if v := l.getenv(EnvJournal); v != "" {
		switch strings.ToLower(v) {
		case "off", "false", "0":
			cfg.Journal.Enabled = false
		default:
			cfg.Journal.Enabled = true
			cfg.Journal.Path = v
		}
	}
	if v := l.getenv(EnvLogLevel); v != "" && cfg.Telemetry != nil {
		cfg.Telemetry.Logging.Level = strings.ToLower(v)
	}
}

// Validate checks struct tags and the telemetry section.
func (l *Loader) Validate(cfg *Config) error {
	if err := l.validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed on '%s'", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}
