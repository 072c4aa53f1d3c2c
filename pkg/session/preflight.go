package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/busyloop/hu/pkg/config"
	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/git"
	"github.com/busyloop/hu/pkg/platform"
	"github.com/busyloop/hu/pkg/telemetry"
	"github.com/busyloop/hu/pkg/terminal"
	"github.com/busyloop/hu/pkg/version"
)

// Git configuration the deploy flow depends on.
const (
	originRemote        = "origin"
	keyMasterRemote     = "branch.master.remote"
	keyGitflowMaster    = "gitflow.branch.master"
	keyVersionTagPrefix = "gitflow.prefix.versiontag"
)

// OpenRepo opens the work tree containing dir and makes its top level the
// working directory of the process.
func OpenRepo(ctx context.Context, dir string, opts ...git.Option) (*git.Repo, error) {
	repo, err := git.Open(ctx, dir, opts...)
	if err != nil {
		return nil, engine.NewConfigError("not inside a git work tree", err).
			WithCode(engine.ErrCodeNoWorkTree).
			WithRemediation("You need to be inside the working copy of the app that you wish to deploy.")
	}
	if err := os.Chdir(repo.Dir()); err != nil {
		return nil, engine.NewConfigError("failed to enter work tree", err).
			WithCode(engine.ErrCodeNoWorkTree)
	}
	return repo, nil
}

// preflight checks the local setup before anything is changed.
func (c *Controller) preflight(ctx context.Context) error {
	op := telemetry.StartOperation(ctx, "session.preflight")
	err := c.checkPreconditions(op.Ctx)
	op.End(err)
	return err
}

func (c *Controller) checkPreconditions(ctx context.Context) error {
	ok, err := c.repo.HasRemote(ctx, originRemote)
	if err != nil {
		return engine.NewConfigError("failed to list remotes", err).WithOperation("preflight")
	}
	if !ok {
		return engine.NewConfigError("repository has no 'origin' remote", nil).
			WithCode(engine.ErrCodeNoOrigin).
			WithRemediation("Please run 'git remote add origin <url>'")
	}

	remote, _, err := c.repo.Config(ctx, keyMasterRemote)
	if err != nil {
		return engine.NewConfigError("failed to read git config", err).WithOperation("preflight")
	}
	if remote != originRemote {
		return engine.NewConfigError("remote of branch 'master' does not point to 'origin'", nil).
			WithCode(engine.ErrCodeNoOrigin).
			WithRemediation("Please run 'git config %s origin'", keyMasterRemote)
	}

	if _, ok, err := c.repo.Config(ctx, keyGitflowMaster); err != nil {
		return engine.NewConfigError("failed to read git config", err).WithOperation("preflight")
	} else if !ok {
		return engine.NewConfigError("this repository doesn't seem to be git-flow enabled", nil).
			WithCode(engine.ErrCodeGitFlow).
			WithRemediation("Please run 'git flow init -d'")
	}

	if prefix, ok, err := c.repo.Config(ctx, keyVersionTagPrefix); err != nil {
		return engine.NewConfigError("failed to read git config", err).WithOperation("preflight")
	} else if ok && prefix != "" {
		return engine.NewConfigError(fmt.Sprintf("git-flow version prefix %q configured", prefix), nil).
			WithCode(engine.ErrCodeTagPrefix).
			WithRemediation("Please use this command to remove the prefix: git config --add %s ''", keyVersionTagPrefix)
	}

	if c.token == "" {
		return engine.NewConfigError("no platform credential found", nil).
			WithCode(engine.ErrCodeMissingCredential).
			WithRemediation("Set HEROKU_API_KEY or log in so that ~/.netrc holds a token for %s", platform.NetrcMachine)
	}

	home, err := c.repo.CurrentBranch(ctx)
	if err != nil {
		return engine.NewConfigError("failed to read current branch", err).WithOperation("preflight")
	}
	c.session.HomeBranch = home
	return nil
}

// resolve finds the pipeline behind the deploy remote, adding the remote
// first when it is missing.
func (c *Controller) resolve(ctx context.Context) error {
	op := telemetry.StartOperation(ctx, "session.resolve")
	err := c.resolveTargets(op.Ctx)
	op.End(err)
	return err
}

func (c *Controller) resolveTargets(ctx context.Context) error {
	remote := c.cfg.Remote
	ok, err := c.repo.HasRemote(ctx, remote)
	if err != nil {
		return engine.NewConfigError("failed to list remotes", err).WithOperation("resolve")
	}
	if !ok {
		if err := c.addDeployRemote(ctx, remote); err != nil {
			return err
		}
	}

	url, ok, err := c.repo.PushURL(ctx, remote)
	if err != nil {
		return engine.NewConfigError("failed to read remote URL", err).WithOperation("resolve")
	}
	if !ok {
		return engine.NewResolutionError(fmt.Sprintf("remote %s has no push URL", remote), nil).
			WithCode(engine.ErrCodeNoTarget).
			WithRemediation("Please run 'git remote rm %s'. Then run 'hu deploy' again to select a new remote.", remote)
	}

	res, err := c.platform.Resolve(ctx, url)
	if err != nil {
		return err
	}
	c.session.PushURL = url
	c.session.Resolution = res
	c.logger.WithField("pipeline", res.Pipeline.Name).
		WithField("staging", res.Staging.Name).
		WithField("production", res.Production.Name).
		Debug("targets resolved")

	keys, err := config.ReadEnvIgnore(config.Resolve(c.repo.Dir(), c.cfg.EnvIgnore))
	if err != nil {
		c.logger.WithError(err).Warn("ignoring env_ignore file")
	}
	opts := []engine.CollectorOption{
		engine.WithEnvIgnore(keys),
		engine.WithCollectorLogger(c.logger.Zerolog()),
		engine.WithClock(c.now),
	}
	if c.ci != nil {
		opts = append(opts, engine.WithCIReader(c.ci))
	}
	if c.tel != nil {
		opts = append(opts, engine.WithCollectorTelemetry(c.tel.Metrics, c.tel.Tracer))
	}
	c.collector = engine.NewCollector(c.repo, c.platform, res.Targets(), opts...)

	c.journalTargets(ctx)
	return nil
}

// addDeployRemote lets the operator pick a pipeline and adds its staging
// app as the deploy remote.
func (c *Controller) addDeployRemote(ctx context.Context, remote string) error {
	pipelines, err := c.platform.Pipelines(ctx)
	if err != nil {
		return engine.NewResolutionError("failed to list pipelines", err).WithOperation("remote setup")
	}
	if len(pipelines) == 0 {
		return engine.NewResolutionError("found no pipelines", nil).
			WithCode(engine.ErrCodeNoTarget).
			WithRemediation("Are you logged into the right account?")
	}
	sort.Slice(pipelines, func(i, j int) bool { return pipelines[i].Name < pipelines[j].Name })

	options := make([]terminal.Option, len(pipelines))
	for i, p := range pipelines {
		options[i] = terminal.Option{Label: p.Name}
	}
	c.console.Println()
	c.console.Printf("This repository has no %q remote yet.\n", remote)
	idx, err := c.prompt.Select(ctx, "Select the pipeline to deploy to", options)
	if err != nil {
		if errors.Is(err, terminal.ErrAborted) {
			return errQuit
		}
		return err
	}

	app, err := c.platform.StagingApp(ctx, pipelines[idx])
	if err != nil {
		return err
	}

	_, err = c.run(ctx, fmt.Sprintf(`
:nospinner
:quiet
# Add git remote
git remote add %s %s`, quote(remote), quote(app.GitURL)), c.options())
	return err
}

// updateWorkingCopy brings develop and master up to date with origin.
func (c *Controller) updateWorkingCopy(ctx context.Context) error {
	_, err := c.run(ctx, `
:quiet
:nospinner
# Ensure local repository is up to date
git checkout develop && git pull
git checkout master && git pull --rebase origin master`, c.options())
	return err
}

// probeMerge fails when develop would not merge cleanly into master.
func (c *Controller) probeMerge(ctx context.Context) error {
	res, err := c.run(ctx, `
:quiet
:nospinner
:return
git checkout master && git merge --no-commit --no-ff develop || { git merge --abort; false ;}
git merge --abort || true`, c.options())
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return engine.NewConfigError("it looks like a merge of 'develop' into 'master' would fail", nil).
			WithCode(engine.ErrCodeMergeConflict).
			WithRemediation("Aborting early to prevent a merge conflict. Merge master into develop and resolve the conflicts first.")
	}
	return nil
}

// selectReleaseTag settles the release tag for the session. An existing
// release branch wins when keepExisting is set, then a version tag already
// on develop, then proposed, for which a new release branch is started.
func (c *Controller) selectReleaseTag(ctx context.Context, proposed version.Tag, keepExisting bool) error {
	for {
		tag := proposed
		branch := engine.ReleaseBranch(tag)

		exists, err := c.repo.BranchExists(ctx, branch)
		if err != nil {
			return engine.NewConfigError("failed to list branches", err).WithOperation("select release")
		}
		if keepExisting {
			branches, err := c.repo.Branches(ctx, "release/")
			if err != nil {
				return engine.NewConfigError("failed to list branches", err).WithOperation("select release")
			}
			if existing, ok := firstReleaseBranch(branches); ok {
				tag, branch, exists = existing, engine.ReleaseBranch(existing), true
			}
		}

		if exists {
			synced, err := c.inSyncWithDevelop(ctx, branch)
			if err != nil {
				return err
			}
			if !synced {
				deleted, err := c.offerBranchReset(ctx, branch)
				if err != nil {
					return err
				}
				if deleted {
					keepExisting = false
				}
				continue
			}
			if _, err := c.run(ctx, fmt.Sprintf(`
:quiet
# Checkout branch %s
git checkout %s`, branch, quote(branch)), c.options()); err != nil {
				return err
			}
			c.session.ReleaseTag = tag
			return nil
		}

		if existing, ok, err := c.developTag(ctx); err != nil {
			return err
		} else if ok {
			c.session.ReleaseTag = existing
			return nil
		}

		if err := c.startRelease(ctx, tag); err != nil {
			return err
		}
		c.session.ReleaseTag = tag
		return nil
	}
}

// firstReleaseBranch returns the tag of the first release branch that
// names a version.
func firstReleaseBranch(branches []string) (version.Tag, bool) {
	for _, b := range branches {
		t, err := version.ParseTag(strings.TrimPrefix(b, "release/"))
		if err == nil {
			return t, true
		}
	}
	return version.Tag{}, false
}

func (c *Controller) inSyncWithDevelop(ctx context.Context, branch string) (bool, error) {
	develop, _, err := c.repo.ResolveRef(ctx, engine.PointerDevelop)
	if err != nil {
		return false, engine.NewConfigError("failed to resolve develop", err).WithOperation("select release")
	}
	release, _, err := c.repo.ResolveRef(ctx, branch)
	if err != nil {
		return false, engine.NewConfigError("failed to resolve "+branch, err).WithOperation("select release")
	}
	return develop == release, nil
}

// offerBranchReset explains a stale release branch and asks what to do.
// It returns errQuit when the operator wants to inspect the situation.
func (c *Controller) offerBranchReset(ctx context.Context, branch string) (bool, error) {
	develop, _, _ := c.repo.ResolveRef(ctx, engine.PointerDevelop)
	release, _, _ := c.repo.ResolveRef(ctx, branch)

	b := terminal.BoldStyle.Render
	c.console.Println()
	c.console.Println(b("Oops!"))
	c.console.Println()
	c.console.Printf("Your release-branch %s is out of sync with %s.\n\n", b(branch), b("develop"))
	c.console.Printf("develop is at %s, %s is at %s.\n\n",
		b(engine.ShortCommit(develop)), branch, b(engine.ShortCommit(release)))
	c.console.Println("This usually means the release branch is old and does")
	c.console.Println("not reflect what you actually want to deploy right now.")
	c.console.Println()

	idx, err := c.prompt.Select(ctx, "What shall we do?", []terminal.Option{
		{Label: fmt.Sprintf("Delete branch '%s' and create new release branch from 'develop'", branch)},
		{Label: "Quit - do nothing, let me inspect the situation"},
	})
	if errors.Is(err, terminal.ErrAborted) || (err == nil && idx != 0) {
		return false, errQuit
	}
	if err != nil {
		return false, err
	}
	return c.deleteBranch(ctx, branch)
}

// developTag returns a version tag already pointing at develop.
func (c *Controller) developTag(ctx context.Context) (version.Tag, bool, error) {
	commit, ok, err := c.repo.ResolveRef(ctx, engine.PointerDevelop)
	if err != nil || !ok {
		return version.Tag{}, false, engine.NewConfigError("failed to resolve develop", err).
			WithCode(engine.ErrCodeGitFlow).
			WithRemediation("Please run 'git flow init -d'")
	}
	tags, err := c.repo.TagsAt(ctx, commit)
	if err != nil {
		return version.Tag{}, false, engine.NewConfigError("failed to list tags at develop", err)
	}
	for _, name := range tags {
		if t, err := version.ParseTag(name); err == nil {
			return t, true, nil
		}
	}
	return version.Tag{}, false, nil
}

func (c *Controller) startRelease(ctx context.Context, tag version.Tag) error {
	_, err := c.run(ctx, fmt.Sprintf(`
# Starting release %s
git flow release start %s >/dev/null`, terminal.OKStyle.Render(tag.String()), quote(tag.String())), c.options())
	return err
}

// deleteBranch asks before deleting branch. It returns false when the
// branch does not exist or the operator declined.
func (c *Controller) deleteBranch(ctx context.Context, branch string) (bool, error) {
	exists, err := c.repo.BranchExists(ctx, branch)
	if err != nil {
		return false, engine.NewConfigError("failed to list branches", err)
	}
	if !exists {
		return false, nil
	}

	ok, err := c.prompt.Confirm(ctx, fmt.Sprintf("Delete branch %s?", branch), false)
	if errors.Is(err, terminal.ErrAborted) {
		return false, nil
	}
	if err != nil || !ok {
		return false, err
	}

	if _, err := c.run(ctx, fmt.Sprintf(`
:quiet
# Delete branch %s
git checkout develop
git branch -D %s`, branch, quote(branch)), c.options()); err != nil {
		return false, err
	}
	c.console.Println(terminal.ErrorStyle.Render(fmt.Sprintf("Branch %s deleted.", branch)))
	return true, nil
}
