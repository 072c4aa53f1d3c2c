// Package hooks runs the repository's release hooks from .hu/hooks.
package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/busyloop/hu/pkg/config"
	"github.com/busyloop/hu/pkg/git"
	"github.com/busyloop/hu/pkg/version"
)

// Hook file names inside the hooks directory.
const (
	PreRelease    = "pre_release"
	Changelog     = "changelog"
	ChangelogStar = "changelog.star"
)

// Environment passed to hooks.
const (
	EnvPreviousTag = "PREVIOUS_TAG"
	EnvReleaseTag  = "RELEASE_TAG"
)

// CommitLog lists commits between two revisions.
type CommitLog interface {
	Log(ctx context.Context, from, to string) ([]git.Commit, error)
}

// Hooks locates and runs hooks for one repository.
type Hooks struct {
	root    string
	dir     string
	log     CommitLog
	star    *config.StarlarkEvaluator
	logger  zerolog.Logger
	timeout time.Duration
}

// Option configures Hooks.
type Option func(*Hooks)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Hooks) { h.logger = logger }
}

// WithTimeout bounds executable changelog hooks and Starlark evaluation.
func WithTimeout(d time.Duration) Option {
	return func(h *Hooks) { h.timeout = d }
}

// New returns the hooks found in dir, relative to the repository root
// unless absolute.
func New(root, dir string, log CommitLog, opts ...Option) *Hooks {
	h := &Hooks{
		root:    root,
		dir:     config.Resolve(root, dir),
		log:     log,
		logger:  zerolog.Nop(),
		timeout: time.Minute,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.star = config.NewStarlarkEvaluator(h.timeout, config.WithPrint(func(msg string) {
		h.logger.Info().Str("hook", ChangelogStar).Msg(msg)
	}))
	return h
}

// Dir returns the resolved hooks directory.
func (h *Hooks) Dir() string {
	return h.dir
}

// Env returns the hook environment for a release.
func Env(previous, release version.Tag) map[string]string {
	return map[string]string{
		EnvPreviousTag: previous.String(),
		EnvReleaseTag:  release.String(),
	}
}

// Executable returns the path of hook name if it is an executable regular
// file.
func (h *Hooks) Executable(name string) (string, bool) {
	path := filepath.Join(h.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	if info.Mode().Perm()&0o111 == 0 {
		h.logger.Debug().Str("hook", path).Msg("Hook exists but is not executable")
		return "", false
	}
	return path, true
}

// PreRelease returns the pre-release hook path when it is executable.
func (h *Hooks) PreRelease() (string, bool) {
	return h.Executable(PreRelease)
}

// Changelog produces the release notes for previous..head. An executable
// changelog hook wins, then changelog.star, then one line per commit.
func (h *Hooks) Changelog(ctx context.Context, previous, release version.Tag, head string) (string, error) {
	if path, ok := h.Executable(Changelog); ok {
		return h.runExecutable(ctx, path, Env(previous, release))
	}

	src, err := os.ReadFile(filepath.Join(h.dir, ChangelogStar))
	switch {
	case err == nil:
		return h.runStarlark(ctx, string(src), previous, release, head)
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("failed to read %s: %w", ChangelogStar, err)
	}

	commits, err := h.log.Log(ctx, previous.String(), head)
	if err != nil {
		return "", fmt.Errorf("failed to list commits: %w", err)
	}
	return FormatCommits(commits), nil
}

// FormatCommits renders " - <hash> <subject> (<author>)" lines.
func FormatCommits(commits []git.Commit) string {
	lines := make([]string, 0, len(commits))
	for _, c := range commits {
		lines = append(lines, fmt.Sprintf(" - %s %s (%s)", c.Hash, c.Subject, c.Author))
	}
	return strings.Join(lines, "\n")
}

func (h *Hooks) runExecutable(ctx context.Context, path string, env map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path)
	cmd.Dir = h.root
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	h.logger.Debug().
		Str("hook", path).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("Hook finished")
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("hook %s failed: %w", filepath.Base(path), err)
		}
		return "", fmt.Errorf("hook %s failed: %w: %s", filepath.Base(path), err, msg)
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}

func (h *Hooks) runStarlark(ctx context.Context, src string, previous, release version.Tag, head string) (string, error) {
	commits, err := h.log.Log(ctx, previous.String(), head)
	if err != nil {
		return "", fmt.Errorf("failed to list commits: %w", err)
	}

	list := make([]interface{}, 0, len(commits))
	for _, c := range commits {
		list = append(list, map[string]interface{}{
			"hash":    c.Hash,
			"subject": c.Subject,
			"author":  c.Author,
		})
	}

	out, err := h.star.Call(ctx, ChangelogStar, src, Changelog, previous.String(), release.String(), list)
	if err != nil {
		return "", err
	}

	switch v := out.(type) {
	case string:
		return strings.TrimRight(v, "\n"), nil
	case []interface{}:
		lines := make([]string, 0, len(v))
		for _, item := range v {
			lines = append(lines, fmt.Sprint(item))
		}
		return strings.Join(lines, "\n"), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("%s: changelog returned %T, want string or list", ChangelogStar, out)
	}
}
