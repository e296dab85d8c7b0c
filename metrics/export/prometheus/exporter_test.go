package prometheus

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	credkit "github.com/credkit/credkit"
)

type fakeSource struct {
	snapshot credkit.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() credkit.MetricsSnapshot { return f.snapshot }
func (f *fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestCollectorRequiresSource(t *testing.T) {
	if _, err := NewCollector(nil); err != ErrNilSource {
		t.Fatalf("got %v, want ErrNilSource", err)
	}
}

func TestCollectorExportsSnapshot(t *testing.T) {
	source := &fakeSource{
		snapshot: credkit.MetricsSnapshot{
			Counters: map[credkit.MetricID]uint64{
				credkit.MetricRecoveryRequested: 7,
				credkit.MetricRateLimitHit:      3,
			},
		},
		dropped: 2,
	}

	collector, err := NewCollector(source)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	registry := prometheus.NewPedanticRegistry()
	if err := registry.Register(collector); err != nil {
		t.Fatalf("Register: %v", err)
	}

	expected := strings.NewReader(`
# HELP credkit_audit_dropped_total Audit events dropped under dispatcher backpressure.
# TYPE credkit_audit_dropped_total counter
credkit_audit_dropped_total 2
# HELP credkit_rate_limit_hit_total Fixed-window rate limit rejections.
# TYPE credkit_rate_limit_hit_total counter
credkit_rate_limit_hit_total 3
# HELP credkit_recovery_requested_total Recovery requests that issued a code.
# TYPE credkit_recovery_requested_total counter
credkit_recovery_requested_total 7
`)
	err = testutil.GatherAndCompare(registry, expected,
		"credkit_audit_dropped_total",
		"credkit_rate_limit_hit_total",
		"credkit_recovery_requested_total",
	)
	if err != nil {
		t.Fatalf("GatherAndCompare: %v", err)
	}
}
