package session

import (
	"context"
	"fmt"

	"github.com/busyloop/hu/pkg/script"
)

// quote escapes a value for interpolation into a script line.
func quote(s string) string {
	return script.Quote(s)
}

// options returns fail-fast options that run in the work tree.
func (c *Controller) options() script.Options {
	opts := script.DefaultOptions()
	opts.Dir = c.repo.Dir()
	return opts
}

// run parses text and runs it through the runner.
func (c *Controller) run(ctx context.Context, text string, opts script.Options) (script.Result, error) {
	s, err := script.Parse(text)
	if err != nil {
		return script.Result{}, fmt.Errorf("invalid script: %w", err)
	}
	return c.runner.Run(ctx, s, opts)
}
