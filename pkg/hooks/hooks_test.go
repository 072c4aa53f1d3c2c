package hooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/busyloop/hu/pkg/git"
	"github.com/busyloop/hu/pkg/version"
)

type fakeLog struct {
	commits  []git.Commit
	err      error
	from, to string
}

func (f *fakeLog) Log(_ context.Context, from, to string) ([]git.Commit, error) {
	f.from, f.to = from, to
	return f.commits, f.err
}

func testCommits() []git.Commit {
	return []git.Commit{
		{Hash: "abc1234", Subject: "Fix checkout", Author: "Ann"},
		{Hash: "def5678", Subject: "Add export", Author: "Bob"},
	}
}

func writeHook(t *testing.T, dir, name, body string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), mode); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

var (
	prev = version.MustParseTag("v1.0.0")
	next = version.MustParseTag("v1.1.0")
)

func TestHooks_ChangelogDefault(t *testing.T) {
	root := t.TempDir()
	log := &fakeLog{commits: testCommits()}
	h := New(root, ".hu/hooks", log)

	got, err := h.Changelog(context.Background(), prev, next, "release/v1.1.0")
	if err != nil {
		t.Fatalf("Changelog() error = %v", err)
	}

	want := " - abc1234 Fix checkout (Ann)\n - def5678 Add export (Bob)"
	if got != want {
		t.Errorf("Changelog() = %q, want %q", got, want)
	}
	if log.from != "v1.0.0" || log.to != "release/v1.1.0" {
		t.Errorf("Log range = %s..%s", log.from, log.to)
	}
}

func TestHooks_ChangelogExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell hooks need a POSIX shell")
	}
	root := t.TempDir()
	dir := filepath.Join(root, ".hu", "hooks")
	writeHook(t, dir, Changelog, "#!/bin/sh\necho \"notes $PREVIOUS_TAG -> $RELEASE_TAG\"\n", 0o755)
	writeHook(t, dir, ChangelogStar, "def changelog(p, r, c):\n    return \"star\"\n", 0o644)

	h := New(root, ".hu/hooks", &fakeLog{})
	got, err := h.Changelog(context.Background(), prev, next, "HEAD")
	if err != nil {
		t.Fatalf("Changelog() error = %v", err)
	}
	if got != "notes v1.0.0 -> v1.1.0" {
		t.Errorf("Changelog() = %q", got)
	}
}

func TestHooks_ChangelogExecutableFails(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell hooks need a POSIX shell")
	}
	root := t.TempDir()
	dir := filepath.Join(root, ".hu", "hooks")
	writeHook(t, dir, Changelog, "#!/bin/sh\necho boom >&2\nexit 3\n", 0o755)

	h := New(root, ".hu/hooks", &fakeLog{})
	_, err := h.Changelog(context.Background(), prev, next, "HEAD")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected hook failure with stderr, got %v", err)
	}
}

func TestHooks_ChangelogStarlark(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".hu", "hooks")

	tests := []struct {
		name    string
		src     string
		want    string
		wantErr bool
	}{
		{
			name: "string",
			src: `
def changelog(previous_tag, release_tag, commits):
    return "\n".join(["* %s (%s)" % (c["subject"], c["author"]) for c in commits])
`,
			want: "* Fix checkout (Ann)\n* Add export (Bob)",
		},
		{
			name: "list",
			src: `
def changelog(previous_tag, release_tag, commits):
    return [release_tag, previous_tag]
`,
			want: "v1.1.0\nv1.0.0",
		},
		{
			name:    "wrong type",
			src:     "def changelog(p, r, c):\n    return 1\n",
			wantErr: true,
		},
		{
			name:    "missing function",
			src:     "notes = 1\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeHook(t, dir, ChangelogStar, tt.src, 0o644)
			h := New(root, ".hu/hooks", &fakeLog{commits: testCommits()})

			got, err := h.Changelog(context.Background(), prev, next, "HEAD")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Changelog() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Changelog() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHooks_ChangelogLogError(t *testing.T) {
	h := New(t.TempDir(), ".hu/hooks", &fakeLog{err: errors.New("bad revision")})
	if _, err := h.Changelog(context.Background(), prev, next, "HEAD"); err == nil {
		t.Fatal("expected error")
	}
}

func TestHooks_PreRelease(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "hooks")
	h := New(root, "hooks", &fakeLog{})

	if _, ok := h.PreRelease(); ok {
		t.Fatal("missing hook reported as present")
	}

	writeHook(t, dir, PreRelease, "#!/bin/sh\n", 0o644)
	if _, ok := h.PreRelease(); ok {
		t.Fatal("non-executable hook reported as present")
	}

	if err := os.Chmod(filepath.Join(dir, PreRelease), 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	path, ok := h.PreRelease()
	if !ok || path != filepath.Join(dir, PreRelease) {
		t.Errorf("PreRelease() = %q, %v", path, ok)
	}
}

func TestEnv(t *testing.T) {
	env := Env(prev, next)
	if env[EnvPreviousTag] != "v1.0.0" || env[EnvReleaseTag] != "v1.1.0" {
		t.Errorf("Env() = %v", env)
	}
}
