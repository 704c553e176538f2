package observability

import (
	"context"
	"testing"

	"github.com/signalsfoundry/mapdraw/internal/logging"
)

func TestSetupTracingDisabled(t *testing.T) {
	ctx := context.Background()
	tr, err := SetupTracing(ctx, TracingConfig{Exporter: "none"}, nil)
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}
	tr.Shutdown(ctx)

	_, span := StartSpan(logging.ContextWithSessionID(ctx, "s-1"), "test", LayerCount(3))
	if span.SpanContext().IsValid() {
		t.Fatalf("no-op provider produced a sampled span")
	}
	span.End()
}

func TestSetupTracingUnknownExporter(t *testing.T) {
	if _, err := SetupTracing(context.Background(), TracingConfig{Exporter: "zipkin"}, nil); err == nil {
		t.Fatalf("SetupTracing accepted an unknown exporter")
	}
}

func TestSetupTracingStdout(t *testing.T) {
	ctx := context.Background()
	tr, err := SetupTracing(ctx, TracingConfig{Exporter: "stdout", SampleRatio: 1}, nil)
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}
	t.Cleanup(func() {
		_, _ = SetupTracing(ctx, TracingConfig{}, nil)
	})

	_, span := StartSpan(ctx, "Workspace.ApplyFeed", RecordCount(2), WorkspaceID("w"))
	if !span.SpanContext().IsValid() {
		t.Fatalf("stdout provider did not produce a valid span")
	}
	span.End()
	tr.Shutdown(ctx)
}
