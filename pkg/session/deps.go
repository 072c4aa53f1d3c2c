package session

import (
	"context"

	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/git"
	"github.com/busyloop/hu/pkg/hooks"
	"github.com/busyloop/hu/pkg/platform"
	"github.com/busyloop/hu/pkg/script"
)

// Repository is the local git repository as the controller sees it.
// *git.Repo implements it.
type Repository interface {
	engine.Repository
	hooks.CommitLog

	Dir() string
	Tags(ctx context.Context) ([]string, error)
	Config(ctx context.Context, key string) (string, bool, error)
	HasRemote(ctx context.Context, name string) (bool, error)
	PushURL(ctx context.Context, remote string) (string, bool, error)
	CurrentBranch(ctx context.Context) (string, error)
	Branches(ctx context.Context, prefix string) ([]string, error)
	BranchExists(ctx context.Context, name string) (bool, error)
}

// Platform is the hosting API. *platform.Client implements it.
type Platform interface {
	engine.TargetReader

	Resolve(ctx context.Context, gitURL string) (*platform.Resolution, error)
	Pipelines(ctx context.Context) ([]platform.Pipeline, error)
	StagingApp(ctx context.Context, pipeline platform.Pipeline) (*platform.App, error)
	Promote(ctx context.Context, r *platform.Resolution) ([]platform.PromotionTarget, error)
	FormationOf(ctx context.Context, app, processType string) (*platform.Formation, error)
}

// Runner executes command scripts. *script.Engine implements it.
type Runner interface {
	Run(ctx context.Context, s script.Script, opts script.Options) (script.Result, error)
}

var (
	_ Repository = (*git.Repo)(nil)
	_ Platform   = (*platform.Client)(nil)
	_ Runner     = (*script.Engine)(nil)
)
