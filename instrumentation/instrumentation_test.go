package instrumentation

import (
	"context"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if inst.Metrics() == nil {
		t.Error("Metrics() returned nil")
	}
	if inst.Meter("server") == nil {
		t.Error("Meter() returned nil")
	}
	if inst.Tracer("server") == nil {
		t.Error("Tracer() returned nil")
	}
	if inst.ShouldLogClientIPs() {
		t.Error("LogClientIPs should default to false unless set")
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestMetricsRecordingIsSafe(t *testing.T) {
	inst, err := New(Config{ServiceName: "test", Enabled: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	m := inst.Metrics()

	// No-op providers: recording must not panic.
	m.RecordHTTPRequest(ctx, "POST", "/token", 200, 1.5)
	m.RecordAuthorizationRequest(ctx, "clientkey")
	m.RecordCodeIssued(ctx, "clientkey")
	m.RecordCodeExchange(ctx, "clientkey")
	m.RecordTokenIssued(ctx, "clientkey", "authorization_code")
	m.RecordTokenRevocation(ctx, "clientkey")
	m.RecordClientRegistration(ctx, false)
	m.RecordRateLimitExceeded(ctx, "token_endpoint")
	m.RecordCodeReuseDetected(ctx)
	m.RecordInvalidRedirect(ctx, "clientkey")
	m.RecordAuditEvent(ctx, "token_issued")
	m.RecordStorageOperation(ctx, "save_grant", "success", 0.2)
}

func TestRegisterStorageSizeCallbacks(t *testing.T) {
	inst, err := New(Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = inst.RegisterStorageSizeCallbacks(
		func() int64 { return 1 },
		func() int64 { return 2 },
		nil,
	)
	if err != nil {
		t.Errorf("RegisterStorageSizeCallbacks: %v", err)
	}
}

func TestNilSafeSpanHelpers(t *testing.T) {
	// All helpers must tolerate nil spans.
	RecordError(nil, context.Canceled)
	SetSpanSuccess(nil)
	SetSpanError(nil, "boom")
	SetSpanAttributes(nil)
	AddFlowAttributes(nil, "client", "user", "id")
	AddStorageAttributes(nil, "get", "memory")
	AddHTTPAttributes(nil, "GET", "/auth", 302)
	AddSecurityAttributes(nil, "203.0.113.7")
}
