// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authorization server. All helpers are nil-safe and the no-op providers are
// used when instrumentation is disabled, so callers never need to guard their
// observability calls.
package instrumentation
