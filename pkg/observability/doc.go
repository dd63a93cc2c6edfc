// Package observability provides structured logging, Prometheus metrics,
// health checks, and OpenTelemetry tracing for the bridge.
//
// # Structured Logging
//
// Create a logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("subject_id", subjectID).Info("User resolved")
//
// # Prometheus Metrics
//
// Initialize metrics against a registry:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.CallbacksTotal.WithLabelValues("success").Inc()
//
// # Health Checks
//
// Configure a health checker over the optional backing stores:
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	status := checker.Check(ctx)
//
// # OpenTelemetry
//
// Initialize tracing:
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		ServiceName: "samlbridge",
//		Endpoint:    "otel-collector:4317",
//	}, logger)
package observability
