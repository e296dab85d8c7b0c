package metrics

import (
	"sync"
	"testing"
)

func TestIncAndSnapshot(t *testing.T) {
	m := New(true)

	m.Inc(MetricRecoveryRequested)
	m.Inc(MetricRecoveryRequested)
	m.Inc(MetricCodeVerified)

	if got := m.Value(MetricRecoveryRequested); got != 2 {
		t.Fatalf("Value = %d, want 2", got)
	}

	s := m.Snapshot()
	if s.Counters[MetricRecoveryRequested] != 2 || s.Counters[MetricCodeVerified] != 1 {
		t.Fatalf("unexpected snapshot: %v", s.Counters)
	}
	if s.Counters[MetricPasswordChanged] != 0 {
		t.Fatalf("untouched counter = %d, want 0", s.Counters[MetricPasswordChanged])
	}
}

func TestDisabledIsNoOp(t *testing.T) {
	m := New(false)

	m.Inc(MetricRecoveryRequested)
	if m.Value(MetricRecoveryRequested) != 0 {
		t.Fatal("disabled metrics recorded a count")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("disabled snapshot should be empty")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricRecoveryRequested)
	if nilMetrics.Value(MetricRecoveryRequested) != 0 {
		t.Fatal("nil metrics recorded a count")
	}
}

func TestConcurrentInc(t *testing.T) {
	m := New(true)

	const workers, each = 8, 1000
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				m.Inc(MetricRateLimitHit)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricRateLimitHit); got != workers*each {
		t.Fatalf("Value = %d, want %d", got, workers*each)
	}
}
