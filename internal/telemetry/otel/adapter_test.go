package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"backoffice/backend/internal/telemetry/domain"
)

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	if em == nil {
		t.Fatal("NewEventEmitter(nil) returned nil")
	}
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("noop Emit(ctx, nil): %v", err)
	}
	if err := em.Emit(context.Background(), &domain.Event{UserID: "u1"}); err != nil {
		t.Errorf("noop Emit(ctx, event): %v", err)
	}
}

func TestEmit_RealProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewEventEmitter(provider)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(ctx, nil): %v", err)
	}
	if err := em.Emit(context.Background(), &domain.Event{EventType: "login_success"}); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

// recordCapture stores the last Record passed to Emit for assertion.
type recordCapture struct {
	rec   otellog.Record
	calls int
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.rec = rec
	r.calls++
}

func attributes(rec otellog.Record) map[string]string {
	out := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		out[kv.Key] = kv.Value.AsString()
		return true
	})
	return out
}

func TestEmit_AttributeAndBodyMapping(t *testing.T) {
	rc := &recordCapture{}
	em := NewEventEmitterWithLogger(rc)
	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	event := &domain.Event{
		UserID:    "user1",
		EventType: "mfa_success",
		Source:    "auth_service",
		Metadata:  []byte(`{"key":"value"}`),
		CreatedAt: created,
	}
	if err := em.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if rc.calls != 1 {
		t.Fatalf("Emit called %d times", rc.calls)
	}
	if got := rc.rec.Body().AsString(); got != `{"key":"value"}` {
		t.Errorf("body = %q", got)
	}
	if !rc.rec.Timestamp().Equal(created) {
		t.Errorf("timestamp = %v, want %v", rc.rec.Timestamp(), created)
	}
	if rc.rec.Severity() != otellog.SeverityInfo {
		t.Errorf("severity = %v", rc.rec.Severity())
	}
	want := map[string]string{"user_id": "user1", "event_type": "mfa_success", "source": "auth_service"}
	got := attributes(rc.rec)
	for k, v := range want {
		if got[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestEmit_EmptyFieldsOmitted(t *testing.T) {
	rc := &recordCapture{}
	em := NewEventEmitterWithLogger(rc)
	before := time.Now().Add(-time.Second)
	if err := em.Emit(context.Background(), &domain.Event{EventType: "login_failure"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !rc.rec.Body().Empty() {
		t.Error("body should be empty without metadata")
	}
	got := attributes(rc.rec)
	if _, ok := got["user_id"]; ok {
		t.Error("empty user_id should not be an attribute")
	}
	if len(got) != 1 {
		t.Errorf("attributes = %v, want only event_type", got)
	}
	if rc.rec.Timestamp().Before(before) {
		t.Errorf("zero CreatedAt should default to now, got %v", rc.rec.Timestamp())
	}
}
