package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"
)

// newTestRepo creates a repository with one commit on master and develop.
func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=Ada", "GIT_AUTHOR_EMAIL=ada@example.com",
			"GIT_COMMITTER_NAME=Ada", "GIT_COMMITTER_EMAIL=ada@example.com",
			"GIT_CONFIG_NOSYSTEM=1", "HOME="+dir,
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	run("init", "-q", "-b", "master")
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("hu\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "README")
	run("commit", "-q", "-m", "Initial revision")
	run("tag", "v1.0.0")
	run("branch", "develop")
	run("branch", "release/v1.0.1")
	run("config", "gitflow.branch.master", "master")
	run("remote", "add", "origin", "git@github.com:busyloop/hu.git")
	run("remote", "add", "heroku", "https://git.heroku.com/hu-staging.git")

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	repo, err := Open(context.Background(), sub)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return repo
}

func TestOpen_FindsTopLevel(t *testing.T) {
	repo := newTestRepo(t)
	if filepath.Base(repo.Dir()) == "sub" {
		t.Fatalf("Dir() = %s, want work tree top level", repo.Dir())
	}
}

func TestOpen_NotRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	_, err := Open(context.Background(), t.TempDir(), WithBinary("git"))
	if err == nil {
		t.Fatal("Open() error = nil outside a repository")
	}
}

func TestRepo_Queries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	master, ok, err := repo.ResolveRef(ctx, "master")
	if err != nil || !ok || len(master) != 40 {
		t.Fatalf("ResolveRef(master) = %q, %v, %v", master, ok, err)
	}
	if _, ok, err := repo.ResolveRef(ctx, "release/v9.9.9"); err != nil || ok {
		t.Fatalf("ResolveRef(missing) ok = %v, err = %v", ok, err)
	}

	tags, err := repo.TagsAt(ctx, master)
	if err != nil || !reflect.DeepEqual(tags, []string{"v1.0.0"}) {
		t.Fatalf("TagsAt() = %v, %v", tags, err)
	}

	v, ok, err := repo.Config(ctx, "gitflow.branch.master")
	if err != nil || !ok || v != "master" {
		t.Fatalf("Config() = %q, %v, %v", v, ok, err)
	}
	if _, ok, err := repo.Config(ctx, "gitflow.prefix.versiontag"); err != nil || ok {
		t.Fatalf("Config(unset) ok = %v, err = %v", ok, err)
	}

	url, ok, err := repo.PushURL(ctx, "heroku")
	if err != nil || !ok || url != "https://git.heroku.com/hu-staging.git" {
		t.Fatalf("PushURL() = %q, %v, %v", url, ok, err)
	}
	if _, ok, err := repo.PushURL(ctx, "nope"); err != nil || ok {
		t.Fatalf("PushURL(missing) ok = %v, err = %v", ok, err)
	}

	branch, err := repo.CurrentBranch(ctx)
	if err != nil || branch != "master" {
		t.Fatalf("CurrentBranch() = %q, %v", branch, err)
	}

	releases, err := repo.Branches(ctx, "release/")
	if err != nil || !reflect.DeepEqual(releases, []string{"release/v1.0.1"}) {
		t.Fatalf("Branches() = %v, %v", releases, err)
	}

	slug, err := repo.OriginSlug(ctx)
	if err != nil || slug != "busyloop/hu" {
		t.Fatalf("OriginSlug() = %q, %v", slug, err)
	}

	commits, err := repo.Log(ctx, "", "develop")
	if err != nil || len(commits) != 1 || commits[0].Subject != "Initial revision" || commits[0].Author != "Ada" {
		t.Fatalf("Log() = %+v, %v", commits, err)
	}
	commits, err = repo.Log(ctx, "v1.0.0", "develop")
	if err != nil || len(commits) != 0 {
		t.Fatalf("Log(v1.0.0..develop) = %+v, %v", commits, err)
	}
}

func TestParseSlug(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"git@github.com:busyloop/hu.git", "busyloop/hu", false},
		{"https://github.com/busyloop/hu.git", "busyloop/hu", false},
		{"ssh://git@github.com/busyloop/hu", "busyloop/hu", false},
		{"https://github.com/", "", true},
		{"nonsense", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := ParseSlug(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSlug() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseSlug() = %q, want %q", got, tt.want)
			}
		})
	}
}
