package script

import (
	"os"
	"sort"
)

// LineParser receives every completed line of streamed output together
// with the child's pid. Returning true ends the stream early: the child's
// process group is signalled and the line counts as successful.
type LineParser func(line string, pid int) (stop bool)

// Options control how a script runs. Directives inside the script override
// them from the directive's position onwards.
type Options struct {
	// Quiet suppresses the echo of successful commands and their output.
	Quiet bool

	// FailFast turns a non-zero exit into a fatal *ScriptError.
	FailFast bool

	// FailQuiet suppresses the error report of a failing line.
	FailQuiet bool

	// Spinner shows the busy indicator while buffered lines run.
	Spinner bool

	// Stream relays output live through a pseudo-terminal.
	Stream bool

	// Env is added to the inherited environment.
	Env map[string]string

	// Dir is the working directory; empty means the current one.
	Dir string

	// Parser inspects streamed output lines.
	Parser LineParser

	// OnInterrupt handles an interrupt during a streamed line. Without it
	// the interrupt aborts the script with ErrInterrupted.
	OnInterrupt func()
}

// DefaultOptions returns fail-fast options with the spinner enabled.
func DefaultOptions() Options {
	return Options{FailFast: true, Spinner: true}
}

// apply mutates o according to d.
func (o *Options) apply(d Directive) {
	switch d {
	case DirectiveQuiet:
		o.Quiet = true
	case DirectiveStream:
		o.Stream = true
		o.Quiet = false
	case DirectiveReturn:
		o.FailFast = false
	case DirectiveNoSpinner:
		o.Spinner = false
	case DirectiveFailQuiet:
		o.FailQuiet = true
	}
}

// environ returns the process environment extended with o.Env.
func (o *Options) environ() []string {
	env := os.Environ()
	if len(o.Env) == 0 {
		return env
	}
	keys := make([]string, 0, len(o.Env))
	for k := range o.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+o.Env[k])
	}
	return env
}
