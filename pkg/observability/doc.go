// Package observability provides structured logging, Prometheus metrics,
// health checks and OpenTelemetry tracing for labkit.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("laboratory_id", labID).Info("lab onboarded")
//
// Request-scoped loggers travel in the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("stale resolution discarded")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordResolution("resolved", elapsed)
//
// The Record* helpers accept a nil receiver, so components take an optional
// *Metrics and tests pass nil.
//
// # Health
//
//	health := observability.NewHealthChecker(version)
//	health.Register("docstore", store, true)
//	health.Register("redis", observability.PingFunc(pingRedis), false)
//
// # Tracing
//
//	ctx, span := observability.StartSpan(ctx, "session.resolve")
//	defer func() { observability.EndSpan(span, err) }()
package observability
