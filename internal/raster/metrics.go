package raster

import (
	"github.com/prometheus/client_golang/prometheus"
)

type guardianMetrics struct {
	evictions prometheus.Counter
	persists  prometheus.Counter
	loads     prometheus.Counter
	exhausted prometheus.Counter
	resident  prometheus.Gauge
}

func newGuardianMetrics() *guardianMetrics {
	return &guardianMetrics{
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkgrid",
			Name:      "evictions_total",
			Help:      "Chunks dropped from memory by the guardian.",
		}),
		persists: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkgrid",
			Name:      "chunk_persists_total",
			Help:      "Chunk payloads written to a backing store.",
		}),
		loads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkgrid",
			Name:      "chunk_loads_total",
			Help:      "Chunk payloads read back from a backing store.",
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkgrid",
			Name:      "memory_exhausted_total",
			Help:      "Allocations refused because the memory budget was exhausted.",
		}),
		resident: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chunkgrid",
			Name:      "resident_bytes",
			Help:      "Estimated footprint of resident chunks.",
		}),
	}
}

func (m *guardianMetrics) register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.evictions, m.persists, m.loads, m.exhausted, m.resident} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
