package script

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/busyloop/hu/pkg/telemetry"
	"github.com/busyloop/hu/pkg/terminal"
)

// LineResult is the outcome of one command line.
type LineResult struct {
	Line     Line
	ExitCode int
	Output   string
	Duration time.Duration
	Stopped  bool
}

// Result is the outcome of a script. ExitCode is the code of the line that
// stopped the script, or 0.
type Result struct {
	ExitCode int
	Lines    []LineResult
}

// Output joins the captured output of every line.
func (r Result) Output() string {
	var b strings.Builder
	for _, l := range r.Lines {
		b.WriteString(l.Output)
	}
	return b.String()
}

// Engine runs scripts one at a time.
type Engine struct {
	mu      sync.Mutex
	console *terminal.Console
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	shell   string

	// idle is how long streamed output must be silent before the
	// animation tick draws.
	idle time.Duration
	// killGrace is how long a signalled child gets before SIGKILL.
	killGrace time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMetrics records per-line metrics.
func WithMetrics(m *telemetry.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer records a span per script.
func WithTracer(t *telemetry.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// WithShell overrides the shell used to run command lines.
func WithShell(shell string) EngineOption {
	return func(e *Engine) { e.shell = shell }
}

// NewEngine creates an engine writing through console.
func NewEngine(console *terminal.Console, logger zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		console:   console,
		logger:    logger.With().Str("component", "script").Logger(),
		shell:     "/bin/sh",
		idle:      230 * time.Millisecond,
		killGrace: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes s. Lines run in order; the first non-zero exit stops the
// script. With FailFast the failure is returned as a *ScriptError the
// caller must treat as fatal; otherwise Result.ExitCode carries the code
// and the error is nil.
func (e *Engine) Run(ctx context.Context, s Script, opts Options) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.StartSpan(ctx, "script.run",
			attribute.Int("script.commands", len(s.Commands())))
		defer span.End()
	}

	var res Result
	for _, line := range s.lines {
		switch line.Kind {
		case LineBlank:
			continue
		case LineComment:
			if !e.quiet(opts) {
				e.console.Println()
				e.console.Section(line.Text)
			}
			continue
		case LineDirective:
			opts.apply(line.Directive)
			continue
		}

		if ctx.Err() != nil {
			return res, ErrInterrupted
		}

		var (
			lr  LineResult
			err error
		)
		if opts.Stream {
			lr, err = e.runStreaming(ctx, line, &opts)
		} else {
			lr, err = e.runBuffered(ctx, line, &opts)
		}
		res.Lines = append(res.Lines, lr)
		e.record(line, &opts, lr)
		if err != nil {
			return res, err
		}
		if lr.ExitCode == 0 {
			continue
		}

		res.ExitCode = lr.ExitCode
		if !opts.FailQuiet {
			e.console.Println(terminal.ErrorStyle.Render(
				fmt.Sprintf("Error, exit %d: %s (L%d)", lr.ExitCode, line.Text, line.Number)))
		}
		if opts.FailFast {
			return res, &ScriptError{Line: line, ExitCode: lr.ExitCode, Output: lr.Output, FailFast: true}
		}
		return res, nil
	}

	return res, nil
}

// RunText parses and runs text in one step.
func (e *Engine) RunText(ctx context.Context, text string, opts Options) (Result, error) {
	s, err := Parse(text)
	if err != nil {
		return Result{}, err
	}
	return e.Run(ctx, s, opts)
}

func (e *Engine) quiet(opts Options) bool {
	return opts.Quiet || e.console.Quiet()
}

func (e *Engine) record(line Line, opts *Options, lr LineResult) {
	mode := "buffered"
	if opts.Stream {
		mode = "stream"
	}
	e.logger.Debug().
		Str("line", line.Text).
		Int("line_no", line.Number).
		Str("mode", mode).
		Int("exit_code", lr.ExitCode).
		Bool("stopped", lr.Stopped).
		Dur("duration", lr.Duration).
		Msg("Script line finished")
	e.metrics.RecordScriptLine(mode, lr.ExitCode, lr.Duration)
}
