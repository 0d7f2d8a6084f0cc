package world

import "github.com/prometheus/client_golang/prometheus"

// Metrics Prometheus-метрики мира. nil допустим.
type Metrics struct {
	edits  prometheus.Counter
	stales prometheus.Counter
	loaded prometheus.Gauge
}

// NewMetrics регистрирует метрики в reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		edits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "world",
			Name:      "edits_total",
			Help:      "Принятые правки вокселей.",
		}),
		stales: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "world",
			Name:      "stale_light_results_total",
			Help:      "Результаты освещения, отброшенные как устаревшие.",
		}),
		loaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Subsystem: "world",
			Name:      "chunks_loaded",
			Help:      "Живые чанки.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.edits, m.stales, m.loaded)
	}
	return m
}

func (m *Metrics) edit() {
	if m != nil {
		m.edits.Inc()
	}
}

func (m *Metrics) stale() {
	if m != nil {
		m.stales.Inc()
	}
}

func (m *Metrics) setChunks(n int) {
	if m != nil {
		m.loaded.Set(float64(n))
	}
}
