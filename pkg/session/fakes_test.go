package session

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/busyloop/hu/pkg/config"
	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/git"
	"github.com/busyloop/hu/pkg/platform"
	"github.com/busyloop/hu/pkg/script"
	"github.com/busyloop/hu/pkg/terminal"
)

const (
	stagingURL = "https://git.heroku.com/shop-staging.git"
	commitD1   = "d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1d1"
	commitM1   = "m1m1m1m1m1m1m1m1m1m1m1m1m1m1m1m1m1m1m1m1"
	commitS1   = "s1s1s1s1s1s1s1s1s1s1s1s1s1s1s1s1s1s1s1s1"
)

// fakeRepo is an in-memory git repository. The fake runner applies the
// few git commands the controller issues to it.
type fakeRepo struct {
	mu      sync.Mutex
	dir     string
	refs    map[string]string
	tags    map[string][]string
	config  map[string]string
	remotes map[string]string
	branch  string
}

func newFakeRepo(t *testing.T) *fakeRepo {
	t.Helper()
	return &fakeRepo{
		dir: t.TempDir(),
		refs: map[string]string{
			"develop":        commitD1,
			"origin/develop": commitD1,
			"master":         commitM1,
		},
		tags: map[string][]string{commitM1: {"v1.0.0"}},
		config: map[string]string{
			keyMasterRemote:  "origin",
			keyGitflowMaster: "master",
		},
		remotes: map[string]string{
			"origin": "git@github.com:busyloop/shop.git",
			"heroku": stagingURL,
		},
		branch: "develop",
	}
}

func (r *fakeRepo) Dir() string { return r.dir }

func (r *fakeRepo) ResolveRef(_ context.Context, ref string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.refs[ref]
	return c, ok, nil
}

func (r *fakeRepo) TagsAt(_ context.Context, commit string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tags[commit]...), nil
}

func (r *fakeRepo) Tags(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, tags := range r.tags {
		out = append(out, tags...)
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeRepo) Config(_ context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.config[key]
	return v, ok, nil
}

func (r *fakeRepo) HasRemote(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.remotes[name]
	return ok, nil
}

func (r *fakeRepo) PushURL(_ context.Context, remote string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	url, ok := r.remotes[remote]
	return url, ok && url != "", nil
}

func (r *fakeRepo) CurrentBranch(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.branch, nil
}

func (r *fakeRepo) Branches(_ context.Context, prefix string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for name := range r.refs {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeRepo) BranchExists(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.refs[name]
	return ok, nil
}

func (r *fakeRepo) Log(_ context.Context, from, to string) ([]git.Commit, error) {
	return []git.Commit{{Hash: "d1d1d1d", Subject: "Add checkout", Author: "Moe"}}, nil
}

func (r *fakeRepo) addTag(commit, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[commit] = append(r.tags[commit], name)
}

// apply mirrors the effect of a git command on the repository.
func (r *fakeRepo) apply(text string) {
	f := strings.Fields(strings.ReplaceAll(text, "'", ""))
	if len(f) < 3 || f[0] != "git" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case f[1] == "checkout" && len(f) == 3:
		if _, ok := r.refs[f[2]]; ok {
			r.branch = f[2]
		}
	case f[1] == "branch" && f[2] == "-D" && len(f) == 4:
		delete(r.refs, f[3])
	case f[1] == "flow" && len(f) >= 5 && f[2] == "release" && f[3] == "start":
		name := "release/" + f[4]
		r.refs[name] = r.refs["develop"]
		r.branch = name
	case f[1] == "remote" && f[2] == "add" && len(f) == 5:
		r.remotes[f[3]] = f[4]
	}
}

type fakePlatform struct {
	mu         sync.Mutex
	states     map[string]engine.TargetState
	pipelines  []platform.Pipeline
	formation  *platform.Formation
	promoteErr error
	promoted   int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		states: map[string]engine.TargetState{
			"shop-staging":    {App: "shop-staging", Commit: commitM1, Release: 10, State: "up"},
			"shop-production": {App: "shop-production", Commit: commitM1, Release: 9, State: "up"},
		},
		pipelines: []platform.Pipeline{{ID: "p2", Name: "shop"}, {ID: "p1", Name: "blog"}},
	}
}

func (p *fakePlatform) resolution() *platform.Resolution {
	return &platform.Resolution{
		Pipeline:   platform.Pipeline{ID: "p2", Name: "shop"},
		Staging:    platform.App{ID: "a1", Name: "shop-staging", GitURL: stagingURL, WebURL: "https://shop-staging.example.com/"},
		Production: platform.App{ID: "a2", Name: "shop-production"},
	}
}

func (p *fakePlatform) setCommit(app, commit string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.states[app]
	s.Commit = commit
	p.states[app] = s
}

func (p *fakePlatform) ReadTarget(_ context.Context, app string) (engine.TargetState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[app]
	if !ok {
		return engine.TargetState{}, errors.New("app not found")
	}
	return s, nil
}

func (p *fakePlatform) Resolve(_ context.Context, gitURL string) (*platform.Resolution, error) {
	if gitURL != stagingURL {
		return nil, engine.NewResolutionError("found no app for git remote "+gitURL, nil).
			WithCode(engine.ErrCodeNoTarget).
			WithRemediation("Check the remote URL")
	}
	return p.resolution(), nil
}

func (p *fakePlatform) Pipelines(context.Context) ([]platform.Pipeline, error) {
	return append([]platform.Pipeline(nil), p.pipelines...), nil
}

func (p *fakePlatform) StagingApp(_ context.Context, pipeline platform.Pipeline) (*platform.App, error) {
	app := p.resolution().Staging
	return &app, nil
}

func (p *fakePlatform) Promote(_ context.Context, r *platform.Resolution) ([]platform.PromotionTarget, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.promoteErr != nil {
		return nil, p.promoteErr
	}
	p.promoted++
	prod := p.states[r.Production.Name]
	prod.Commit = p.states[r.Staging.Name].Commit
	p.states[r.Production.Name] = prod
	return nil, nil
}

func (p *fakePlatform) FormationOf(context.Context, string, string) (*platform.Formation, error) {
	if p.formation == nil {
		return nil, errors.New("no formation")
	}
	return p.formation, nil
}

// fakeRunner records every command line and applies it to the repo.
// exit maps a command substring to the exit status it produces; fail maps
// one to the error Run returns, as for an interrupted stream.
type fakeRunner struct {
	mu     sync.Mutex
	repo   *fakeRepo
	exit   map[string]int
	fail   map[string]error
	onLine func(text string)
	lines  []string
}

func (r *fakeRunner) Run(_ context.Context, s script.Script, opts script.Options) (script.Result, error) {
	for _, l := range s.Lines() {
		if l.Kind == script.LineDirective && l.Directive == script.DirectiveReturn {
			opts.FailFast = false
		}
	}

	var res script.Result
	for _, l := range s.Commands() {
		r.mu.Lock()
		r.lines = append(r.lines, l.Text)
		code := 0
		for sub, c := range r.exit {
			if strings.Contains(l.Text, sub) {
				code = c
			}
		}
		var failErr error
		for sub, err := range r.fail {
			if strings.Contains(l.Text, sub) {
				failErr = err
			}
		}
		onLine := r.onLine
		r.mu.Unlock()

		if failErr != nil {
			return res, failErr
		}

		if r.repo != nil {
			r.repo.apply(l.Text)
		}
		if onLine != nil {
			onLine(l.Text)
		}
		res.Lines = append(res.Lines, script.LineResult{Line: l, ExitCode: code})
		if code != 0 {
			res.ExitCode = code
			if opts.FailFast {
				return res, &script.ScriptError{Line: l, ExitCode: code, FailFast: true}
			}
			return res, nil
		}
	}
	return res, nil
}

func (r *fakeRunner) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *fakeRunner) ran(sub string) bool {
	for _, l := range r.commands() {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

func (r *fakeRunner) ranLine(text string) bool {
	for _, l := range r.commands() {
		if l == text {
			return true
		}
	}
	return false
}

// fakePrompter answers Select with the first option whose label starts
// with the next queued prefix. An empty queue aborts.
type fakePrompter struct {
	mu       sync.Mutex
	selects  []string
	confirms []bool
	asked    []string
	onSelect func(options []terminal.Option)
}

func (p *fakePrompter) Select(_ context.Context, title string, options []terminal.Option) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, title)
	if p.onSelect != nil {
		p.onSelect(options)
	}
	if len(p.selects) == 0 {
		return 0, terminal.ErrAborted
	}
	want := p.selects[0]
	p.selects = p.selects[1:]
	for i, o := range options {
		if strings.HasPrefix(o.Label, want) {
			return i, nil
		}
	}
	return len(options), nil
}

func (p *fakePrompter) Confirm(_ context.Context, question string, defaultYes bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, question)
	if len(p.confirms) == 0 {
		return defaultYes, nil
	}
	ok := p.confirms[0]
	p.confirms = p.confirms[1:]
	return ok, nil
}

type fakeCI struct {
	status engine.CIStatus
}

func (f *fakeCI) CombinedStatus(_ context.Context, commit string) (engine.CIStatus, error) {
	s := f.status
	s.Commit = commit
	return s, nil
}

// world wires a controller to fakes.
type world struct {
	repo     *fakeRepo
	platform *fakePlatform
	runner   *fakeRunner
	prompt   *fakePrompter
	out      *bytes.Buffer
}

func newWorld(t *testing.T) *world {
	t.Helper()
	repo := newFakeRepo(t)
	return &world{
		repo:     repo,
		platform: newFakePlatform(),
		runner:   &fakeRunner{repo: repo},
		prompt:   &fakePrompter{},
		out:      &bytes.Buffer{},
	}
}

func (w *world) controller(opts ...Option) *Controller {
	base := []Option{
		WithPrompter(w.prompt),
		WithToken("secret"),
		WithOperator("Moe"),
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
	}
	return New(config.Default(w.repo.dir), w.repo, w.platform, w.runner,
		terminal.NewBuffered(w.out, false), append(base, opts...)...)
}
