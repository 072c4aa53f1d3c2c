// Package telemetry provides logging, tracing and metrics for hu.
//
// Logging uses zerolog and writes to stderr so it never interleaves with the
// operator-facing console on stdout. Tracing uses OpenTelemetry with an
// stdout or OTLP gRPC exporter and is off by default. Metrics use a private
// Prometheus registry that can be scraped while a session runs or written to
// a node_exporter textfile when the session ends.
//
// # Usage
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = telemetry.BeginSession(tel.WithContext(ctx), sessionID)
//	defer telemetry.EndSession(ctx, exitCode, err)
//
// Per-operation instrumentation:
//
//	op := telemetry.StartOperation(ctx, "snapshot.collect")
//	snap, err := collector.Collect(op.Ctx)
//	op.End(err)
//
// Every Metrics method tolerates a nil or disabled receiver, so callers
// never need to check whether metrics are configured.
package telemetry
