package bot

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iamwavecut/totem/internal/event"
	"github.com/iamwavecut/totem/internal/observability"
)

// Runs without t.Parallel: it swaps the process-wide tracer provider and
// logger and restores them before the parallel batch starts.
func TestProcessEmitsSpanAndStructuredLog(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	oldProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	defer otel.SetTracerProvider(oldProvider)

	core, logs := observer.New(zapcore.DebugLevel)
	oldLogger := observability.Logger
	observability.Logger = zap.New(core)
	defer func() { observability.Logger = oldLogger }()

	f := newFixture(event.Decision{})
	f.store.known[5] = true
	if err := f.processor.process(context.Background(), groupMessage(5, "hello")); err != nil {
		t.Fatalf("process: %v", err)
	}

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() == "process-event" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no process-event span recorded, got %d spans", len(recorder.Ended()))
	}

	entries := logs.FilterMessage("event classified").All()
	if len(entries) != 1 {
		t.Fatalf("structured log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["senderID"] != int64(5) {
		t.Fatalf("senderID field = %v", fields["senderID"])
	}
}
