package light

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxel-light/internal/voxel"
)

// Metrics Prometheus-метрики пакетных заданий. nil допустим.
type Metrics struct {
	jobs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics регистрирует метрики в reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "light",
			Name:      "jobs_total",
			Help:      "Число выполненных пакетных заданий освещения.",
		}, []string{"color"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "light",
			Name:      "jobs_failed_total",
			Help:      "Задания, отклонённые из-за некорректных данных.",
		}, []string{"color"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voxel",
			Subsystem: "light",
			Name:      "job_duration_seconds",
			Help:      "Длительность пакетного задания освещения.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"color"}),
	}
	reg.MustRegister(m.jobs, m.failures, m.duration)
	return m
}

func (m *Metrics) observeJob(c voxel.LightColor, d time.Duration, err error) {
	if m == nil {
		return
	}
	label := c.String()
	m.jobs.WithLabelValues(label).Inc()
	m.duration.WithLabelValues(label).Observe(d.Seconds())
	if err != nil {
		m.failures.WithLabelValues(label).Inc()
	}
}
