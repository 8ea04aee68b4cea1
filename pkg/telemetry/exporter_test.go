package telemetry

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestLoggingExporter_ExportSpansRecordsBatchTiming(t *testing.T) {
	e := newLoggingExporter(nil)

	if err := e.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := e.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	phases := e.timer.GetPhases()
	if len(phases) != 2 {
		t.Fatalf("expected 2 timed batches, got %d", len(phases))
	}
	if phases[0].Name != "batch-1" || phases[1].Name != "batch-2" {
		t.Errorf("expected batch-1 and batch-2, got %s and %s", phases[0].Name, phases[1].Name)
	}
}

func TestLoggingExporter_ShutdownDoesNotPanicWithNoBatches(t *testing.T) {
	e := newLoggingExporter(nil)
	if err := e.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
