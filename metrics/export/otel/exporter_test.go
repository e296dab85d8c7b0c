package otel

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	credkit "github.com/credkit/credkit"
)

type fakeSource struct {
	snapshot credkit.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() credkit.MetricsSnapshot { return f.snapshot }
func (f *fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("credkit-test")

	source := &fakeSource{
		snapshot: credkit.MetricsSnapshot{
			Counters: map[credkit.MetricID]uint64{
				credkit.MetricCodeVerified: 5,
			},
		},
		dropped: 1,
	}

	exporter, err := NewExporter(meter, source)
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}
	defer func() {
		if err := exporter.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("credkit-test")

	if _, err := NewExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("got %v, want ErrNilSource", err)
	}
	if _, err := NewExporter(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("got %v, want ErrNilMeter", err)
	}
}
