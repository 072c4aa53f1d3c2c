package platform

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/busyloop/hu/pkg/engine"
)

// LatestRelease returns the newest release of an app.
func (c *Client) LatestRelease(ctx context.Context, app string) (*Release, error) {
	var releases []Release
	err := c.doRange(ctx, "/apps/"+escape(app)+"/releases", "version ..; order=desc, max=1", &releases)
	if err != nil {
		return nil, err
	}
	if len(releases) == 0 {
		return nil, fmt.Errorf("app %s has no releases", app)
	}
	return &releases[0], nil
}

// ReadTarget implements engine.TargetReader. The release chain
// (dynos, release, slug) and the config reads run concurrently.
func (c *Client) ReadTarget(ctx context.Context, app string) (engine.TargetState, error) {
	state := engine.TargetState{App: app}

	var (
		configKeys []string
		formation  map[string]int
		preboot    bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.readRelease(gctx, app, &state)
	})
	g.Go(func() error {
		vars, err := c.ConfigVars(gctx, app)
		if err != nil {
			c.logger.Debug().Err(err).Str("app", app).Msg("config vars unavailable")
			return nil
		}
		for k := range vars {
			configKeys = append(configKeys, k)
		}
		sort.Strings(configKeys)
		return nil
	})
	g.Go(func() error {
		f, err := c.Formation(gctx, app)
		if err != nil {
			c.logger.Debug().Err(err).Str("app", app).Msg("formation unavailable")
			return nil
		}
		formation = make(map[string]int, len(f))
		for _, p := range f {
			if p.Quantity > 0 {
				formation[p.Type] = p.Quantity
			}
		}
		return nil
	})
	g.Go(func() error {
		f, err := c.Feature(gctx, app, "preboot")
		if err == nil {
			preboot = f.Enabled
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return engine.TargetState{App: app}, err
	}

	state.ConfigKeys = configKeys
	state.Formation = formation
	state.Preboot = preboot
	return state, nil
}

func (c *Client) readRelease(ctx context.Context, app string, state *engine.TargetState) error {
	dynos, err := c.Dynos(ctx, app)
	if err != nil {
		return fmt.Errorf("list dynos of %s: %w", app, err)
	}
	state.Dynos = len(dynos)
	state.State = dynoStates(dynos)

	var release *Release
	if len(dynos) > 0 && dynos[0].Release.Version > 0 {
		release, err = c.Release(ctx, app, dynos[0].Release.Version)
	} else {
		release, err = c.LatestRelease(ctx, app)
	}
	if err != nil {
		return fmt.Errorf("read release of %s: %w", app, err)
	}
	if release.Slug == nil || release.Slug.ID == "" {
		return fmt.Errorf("release v%d of %s has no slug", release.Version, app)
	}

	slug, err := c.Slug(ctx, app, release.Slug.ID)
	if err != nil {
		return fmt.Errorf("read slug of %s: %w", app, err)
	}

	state.Commit = slug.Commit
	state.Release = release.Version
	state.ModifiedAt = release.UpdatedAt
	state.ModifiedBy = release.User.Email
	return nil
}

// dynoStates returns the distinct dyno states, "offline" when none run.
func dynoStates(dynos []Dyno) string {
	if len(dynos) == 0 {
		return "offline"
	}
	seen := map[string]struct{}{}
	for _, d := range dynos {
		seen[d.State] = struct{}{}
	}
	states := make([]string, 0, len(seen))
	for s := range seen {
		states = append(states, s)
	}
	sort.Strings(states)
	return strings.Join(states, ", ")
}

func (c *Client) doRange(ctx context.Context, path, rng string, out interface{}) error {
	return c.doWithHeader(ctx, http.MethodGet, path, "Range", rng, out)
}
