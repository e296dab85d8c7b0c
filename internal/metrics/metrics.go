// Package metrics holds the in-process counters for the recovery flow.
// Counters are plain atomics padded to a cache line apiece; incrementing one
// costs a single atomic add and never allocates, so the hot path is safe to
// instrument unconditionally.
package metrics

import "sync/atomic"

// MetricID identifies one counter.
type MetricID uint16

const (
	MetricRecoveryRequested MetricID = iota
	MetricRecoveryMasked
	MetricRecoveryFailure
	MetricCodeVerified
	MetricCodeRejected
	MetricCodeAttemptsExceeded
	MetricPasswordChanged
	MetricPasswordChangeFailure
	MetricCaptchaRejected
	MetricRateLimitHit
	MetricDispatchFailure
	MetricSessionDestroyed
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the counter set. A nil or disabled Metrics ignores all writes.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Counters map[MetricID]uint64
}

// New returns a Metrics instance. With enabled false every operation is a
// no-op and Snapshot returns an empty map.
func New(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters. The copy is not atomic across counters;
// individual reads are.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{Counters: map[MetricID]uint64{}}
	}

	s := Snapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
