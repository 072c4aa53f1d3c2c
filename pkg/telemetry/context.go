package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles logging, tracing and metrics for one process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// NewNop returns telemetry that logs nothing and exports nothing.
func NewNop() *Telemetry {
	cfg := DefaultConfig()
	tracer, _ := NewTracer(TracingConfig{}, cfg.ServiceName, "")
	metrics, _ := NewMetrics(MetricsConfig{})
	return &Telemetry{
		Logger:  NewNopLogger(),
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Start brings up the metrics endpoint if one is configured.
func (t *Telemetry) Start() error {
	return t.Metrics.StartMetricsServer()
}

// Shutdown flushes spans and metrics.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Tracer.Shutdown(ctx),
		t.Metrics.Shutdown(ctx),
	)
}

// InstrumentedContext carries the span, logger and timer of one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	logger := tel.Logger.WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.
			WithField("trace_id", span.SpanContext().TraceID().String()).
			WithField("span_id", span.SpanContext().SpanID().String())
	}

	return &InstrumentedContext{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		if err != nil {
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}

	if err != nil {
		ic.Logger.WithError(err).
			WithField("duration_ms", ic.Timer.Duration().Milliseconds()).
			Debug("operation failed")
		return
	}
	ic.Logger.WithField("duration_ms", ic.Timer.Duration().Milliseconds()).Debug("operation completed")
}

// sessionKey is the context key for session spans.
type sessionKey struct{}

type sessionState struct {
	span    trace.Span
	started time.Time
}

// BeginSession opens the session span and tags the context logger with the
// session ID.
func BeginSession(ctx context.Context, sessionID string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartSessionSpan(ctx, sessionID)
	spanCtx = tel.Logger.WithSessionID(sessionID).WithContext(spanCtx)
	tel.Metrics.RecordSessionStarted()

	return context.WithValue(spanCtx, sessionKey{}, &sessionState{span: span, started: time.Now()})
}

// EndSession closes the session span and records its exit code.
func EndSession(ctx context.Context, exitCode int, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}
	st, ok := ctx.Value(sessionKey{}).(*sessionState)
	if !ok {
		return
	}
	if err != nil {
		RecordError(st.span, err)
	} else {
		RecordSuccess(st.span)
	}
	st.span.SetAttributes(attribute.Int("exit_code", exitCode))
	st.span.End()
	tel.Metrics.RecordSessionCompleted(exitCode, time.Since(st.started))
}
