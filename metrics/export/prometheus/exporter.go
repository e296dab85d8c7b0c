// Package prometheus exposes engine counters as a Prometheus collector.
// The collector reads a fresh snapshot on every scrape, so it holds no state
// of its own and never races the engine.
package prometheus

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	credkit "github.com/credkit/credkit"
	"github.com/credkit/credkit/metrics/export/internaldefs"
)

// ErrNilSource reports a collector built without a metrics source.
var ErrNilSource = errors.New("nil metrics source")

// Source is the subset of the engine the collector reads.
type Source interface {
	MetricsSnapshot() credkit.MetricsSnapshot
	AuditDropped() uint64
}

type counterDesc struct {
	id   credkit.MetricID
	desc *prometheus.Desc
}

// Collector implements prometheus.Collector over an engine's counters.
type Collector struct {
	source       Source
	counters     []counterDesc
	auditDropped *prometheus.Desc
}

// NewCollector builds a collector for the given source, typically the
// *credkit.Engine itself. Register it with a prometheus.Registerer.
func NewCollector(source Source) (*Collector, error) {
	if source == nil {
		return nil, ErrNilSource
	}

	c := &Collector{
		source:       source,
		counters:     make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		auditDropped: prometheus.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}

	return c, nil
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, counter := range c.counters {
		ch <- counter.desc
	}
	ch <- c.auditDropped
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source.MetricsSnapshot()
	for _, counter := range c.counters {
		ch <- prometheus.MustNewConstMetric(counter.desc, prometheus.CounterValue, float64(snapshot.Counters[counter.id]))
	}
	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
}
