// Package config loads ~/.hu.yaml and evaluates Starlark hooks.
//
// A configuration file is parsed with yaml.v3, checked against the built-in
// "hu" CUE definition (unknown keys are rejected) and then against the
// struct validation tags. HU_JOURNAL and LOG_LEVEL override the file.
//
//	cfg, err := config.NewLoader().Load(ctx, "")
//	if err != nil {
//	    return err
//	}
//
// StarlarkEvaluator runs .star hooks with a deadline. Call executes a
// script and invokes one of its functions:
//
//	se := config.NewStarlarkEvaluator(0)
//	text, err := se.Call(ctx, "changelog.star", src, "changelog", prev, next, commits)
package config
