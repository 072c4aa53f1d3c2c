package platform

import (
	"context"
	"fmt"

	"github.com/busyloop/hu/pkg/engine"
)

// Resolution is the pipeline a deploy remote belongs to.
type Resolution struct {
	Pipeline   Pipeline
	Staging    App
	Production App
}

// Targets returns the app names for the collector.
func (r *Resolution) Targets() engine.Targets {
	return engine.Targets{
		Pipeline:   r.Pipeline.Name,
		Staging:    r.Staging.Name,
		Production: r.Production.Name,
	}
}

// Resolve finds the app whose git URL is gitURL and the pipeline it is the
// staging member of.
func (c *Client) Resolve(ctx context.Context, gitURL string) (*Resolution, error) {
	apps, err := c.Apps(ctx)
	if err != nil {
		return nil, c.wrapAuth(err, "list apps")
	}

	var matches []App
	for _, a := range apps {
		if a.GitURL == gitURL {
			matches = append(matches, a)
		}
	}
	switch len(matches) {
	case 0:
		return nil, engine.NewResolutionError(fmt.Sprintf("found no app for git remote %s", gitURL), nil).
			WithCode(engine.ErrCodeNoTarget).
			WithRemediation("Are you logged into the right account? Remove the deploy remote with 'git remote rm <remote>' and run 'hu deploy' again to select a new one.")
	case 1:
	default:
		return nil, engine.NewResolutionError(fmt.Sprintf("found %d apps with git_url=%s", len(matches), gitURL), nil).
			WithCode(engine.ErrCodeMultipleTargets)
	}
	app := matches[0]

	couplings, err := c.Couplings(ctx)
	if err != nil {
		return nil, c.wrapAuth(err, "list pipeline couplings")
	}

	var own []Coupling
	for _, cp := range couplings {
		if cp.App.ID == app.ID {
			own = append(own, cp)
		}
	}
	if len(own) != 1 {
		return nil, engine.NewResolutionError(fmt.Sprintf("found %d pipelines for app %s", len(own), app.Name), nil).
			WithCode(engine.ErrCodeNoTarget).
			WithRemediation("Add %s to exactly one pipeline as its staging app.", app.Name)
	}
	pipeline := Pipeline{ID: own[0].Pipeline.ID, Name: own[0].Pipeline.Name}

	var stagingID, productionID string
	for _, cp := range couplings {
		if cp.Pipeline.ID != pipeline.ID {
			continue
		}
		switch cp.Stage {
		case StageStaging:
			if stagingID == "" {
				stagingID = cp.App.ID
			}
		case StageProduction:
			if productionID == "" {
				productionID = cp.App.ID
			}
		}
	}

	if stagingID != app.ID {
		return nil, engine.NewResolutionError(
			fmt.Sprintf("the deploy remote points to app '%s' which is not in stage 'staging' of pipeline '%s'", app.Name, pipeline.Name), nil).
			WithCode(engine.ErrCodeWrongRole).
			WithRemediation("The referenced app MUST be the staging member of the pipeline. Remove the deploy remote and run 'hu deploy' again to select a new one.")
	}
	if productionID == "" {
		return nil, engine.NewResolutionError(fmt.Sprintf("no production app in pipeline %s", pipeline.Name), nil).
			WithCode(engine.ErrCodeNoTarget)
	}

	production, err := c.App(ctx, productionID)
	if err != nil {
		return nil, c.wrapAuth(err, "read production app")
	}

	return &Resolution{Pipeline: pipeline, Staging: app, Production: *production}, nil
}

// StagingApp returns the staging app of a pipeline.
func (c *Client) StagingApp(ctx context.Context, pipeline Pipeline) (*App, error) {
	couplings, err := c.PipelineCouplings(ctx, pipeline.ID)
	if err != nil {
		return nil, c.wrapAuth(err, "list pipeline couplings")
	}
	for _, cp := range couplings {
		if cp.Stage == StageStaging {
			return c.App(ctx, cp.App.ID)
		}
	}
	return nil, engine.NewResolutionError(fmt.Sprintf("pipeline %s has no staging app", pipeline.Name), nil).
		WithCode(engine.ErrCodeNoTarget)
}

func (c *Client) wrapAuth(err error, op string) error {
	if IsUnauthorized(err) {
		return engine.NewConfigError("platform access denied", err).
			WithCode(engine.ErrCodeMissingCredential).
			WithOperation(op).
			WithRemediation("Most likely your local credentials have expired. Please run 'heroku login'.")
	}
	return engine.NewResolutionError("platform request failed", err).WithOperation(op)
}
