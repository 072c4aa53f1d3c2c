// Package git runs read-only git queries against a working copy.
//
// Mutations (checkout, merge, push) are never issued from here. They run as
// command scripts so that their output reaches the operator.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNotRepository is returned by Open outside a git work tree.
var ErrNotRepository = errors.New("not inside a git work tree")

// Repo is a git working copy. It is safe for concurrent use because every
// call spawns its own git process.
type Repo struct {
	dir    string
	git    string
	logger zerolog.Logger
}

// Option configures a Repo.
type Option func(*Repo)

// WithLogger sets the logger used for command tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Repo) { r.logger = logger }
}

// WithBinary overrides the git executable.
func WithBinary(path string) Option {
	return func(r *Repo) { r.git = path }
}

// Open locates the work tree containing dir.
func Open(ctx context.Context, dir string, opts ...Option) (*Repo, error) {
	r := &Repo{dir: dir, git: "git", logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}

	top, err := r.output(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRepository, err)
	}
	r.dir = top
	return r, nil
}

// Dir returns the top level of the work tree.
func (r *Repo) Dir() string {
	return r.dir
}

// commandError keeps git's stderr and exit code.
type commandError struct {
	args     []string
	exitCode int
	stderr   string
}

func (e *commandError) Error() string {
	msg := fmt.Sprintf("git %s: exit %d", strings.Join(e.args, " "), e.exitCode)
	if e.stderr != "" {
		msg += ": " + e.stderr
	}
	return msg
}

// exitCodeOf returns the git exit code, or -1 if err is not a command error.
func exitCodeOf(err error) int {
	var ce *commandError
	if errors.As(err, &ce) {
		return ce.exitCode
	}
	return -1
}

func (r *Repo) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.git, args...)
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	r.logger.Trace().Strs("args", args).Err(err).Msg("git")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &commandError{
				args:     args,
				exitCode: exitErr.ExitCode(),
				stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}

func (r *Repo) lines(ctx context.Context, args ...string) ([]string, error) {
	out, err := r.output(ctx, args...)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func splitLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// ResolveRef returns the commit id of ref. ok is false when ref does not
// exist.
func (r *Repo) ResolveRef(ctx context.Context, ref string) (string, bool, error) {
	out, err := r.output(ctx, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		if exitCodeOf(err) == 1 {
			return "", false, nil
		}
		return "", false, err
	}
	return out, true, nil
}

// TagsAt returns the tags pointing at commit.
func (r *Repo) TagsAt(ctx context.Context, commit string) ([]string, error) {
	return r.lines(ctx, "tag", "--points-at", commit)
}

// Tags returns every tag in the repository.
func (r *Repo) Tags(ctx context.Context) ([]string, error) {
	return r.lines(ctx, "tag")
}

// Config returns a git config value. ok is false when the key is unset.
func (r *Repo) Config(ctx context.Context, key string) (string, bool, error) {
	out, err := r.output(ctx, "config", "--get", key)
	if err != nil {
		if exitCodeOf(err) == 1 {
			return "", false, nil
		}
		return "", false, err
	}
	return out, true, nil
}

// Remotes returns the configured remote names.
func (r *Repo) Remotes(ctx context.Context) ([]string, error) {
	return r.lines(ctx, "remote")
}

// HasRemote reports whether a remote named name exists.
func (r *Repo) HasRemote(ctx context.Context, name string) (bool, error) {
	remotes, err := r.Remotes(ctx)
	if err != nil {
		return false, err
	}
	for _, rm := range remotes {
		if rm == name {
			return true, nil
		}
	}
	return false, nil
}

// PushURL returns the push URL of a remote. ok is false when the remote
// does not exist.
func (r *Repo) PushURL(ctx context.Context, remote string) (string, bool, error) {
	out, err := r.output(ctx, "remote", "get-url", "--push", remote)
	if err != nil {
		if exitCodeOf(err) == 2 {
			return "", false, nil
		}
		return "", false, err
	}
	return out, true, nil
}

// CurrentBranch returns the checked-out branch, or "" on a detached HEAD.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.output(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		if exitCodeOf(err) == 1 {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// Branches returns local branch names starting with prefix, sorted.
func (r *Repo) Branches(ctx context.Context, prefix string) ([]string, error) {
	all, err := r.lines(ctx, "for-each-ref", "refs/heads/", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, b := range all {
		if strings.HasPrefix(b, prefix) {
			out = append(out, b)
		}
	}
	sort.Strings(out)
	return out, nil
}

// BranchExists reports whether a local branch exists.
func (r *Repo) BranchExists(ctx context.Context, name string) (bool, error) {
	_, ok, err := r.ResolveRef(ctx, "refs/heads/"+name)
	return ok, err
}

// Commit describes one log entry.
type Commit struct {
	Hash    string
	Subject string
	Author  string
}

// Log returns the commits reachable from to but not from from. An empty
// from lists the full history of to.
func (r *Repo) Log(ctx context.Context, from, to string) ([]Commit, error) {
	rng := to
	if from != "" {
		rng = from + ".." + to
	}
	out, err := r.lines(ctx, "log", "--pretty=format:%h%x1f%s%x1f%an", rng)
	if err != nil {
		return nil, err
	}
	commits := make([]Commit, 0, len(out))
	for _, l := range out {
		parts := strings.SplitN(l, "\x1f", 3)
		if len(parts) != 3 {
			continue
		}
		commits = append(commits, Commit{Hash: parts[0], Subject: parts[1], Author: parts[2]})
	}
	return commits, nil
}

// OriginSlug returns "owner/repo" parsed from the origin URL, for
// scp-style and https remotes alike.
func (r *Repo) OriginSlug(ctx context.Context) (string, error) {
	url, ok, err := r.Config(ctx, "remote.origin.url")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("origin remote has no url")
	}
	return ParseSlug(url)
}

// ParseSlug extracts "owner/repo" from a git remote URL.
func ParseSlug(url string) (string, error) {
	s := strings.TrimSuffix(strings.TrimSpace(url), ".git")
	switch {
	case strings.Contains(s, "://"):
		s = s[strings.Index(s, "://")+3:]
		if i := strings.Index(s, "/"); i >= 0 {
			s = s[i+1:]
		} else {
			s = ""
		}
	case strings.Contains(s, ":"):
		s = s[strings.Index(s, ":")+1:]
	default:
		s = ""
	}
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", fmt.Errorf("cannot parse repository from %q", url)
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1], nil
}
