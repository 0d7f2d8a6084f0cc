package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics метрики планировщика. nil допустим.
type Metrics struct {
	processedTotal *prometheus.CounterVec
	failedTotal    *prometheus.CounterVec
	requeuedTotal  *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	queueLength    prometheus.Gauge
	inFlight       prometheus.Gauge
	processing     prometheus.Gauge
}

// NewMetrics регистрирует метрики пайплайна в reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		processedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "pipeline",
			Name:      "processed_total",
			Help:      "Чанки, прошедшие стадию.",
		}, []string{"stage"}),
		failedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "pipeline",
			Name:      "failed_total",
			Help:      "Чанки, снятые с пайплайна из-за ошибки стадии.",
		}, []string{"stage"}),
		requeuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "pipeline",
			Name:      "requeued_total",
			Help:      "Возвраты в очередь из-за непройденной проверки стадии.",
		}, []string{"stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voxel",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Время от запуска стадии до получения результата.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Subsystem: "pipeline",
			Name:      "queue_length",
			Help:      "Записи в очереди пайплайна.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Subsystem: "pipeline",
			Name:      "in_flight_chunks",
			Help:      "Чанки в пайплайне.",
		}),
		processing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Subsystem: "pipeline",
			Name:      "processing",
			Help:      "Задачи текущей партии.",
		}),
	}
	reg.MustRegister(m.processedTotal, m.failedTotal, m.requeuedTotal, m.stageDuration,
		m.queueLength, m.inFlight, m.processing)
	return m
}

func (m *Metrics) processed(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.processedTotal.WithLabelValues(stage).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) failed(stage string) {
	if m == nil {
		return
	}
	m.failedTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) requeued(stage string) {
	if m == nil {
		return
	}
	m.requeuedTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) setQueue(queued, inFlight int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(queued))
	m.inFlight.Set(float64(inFlight))
}

func (m *Metrics) setProcessing(n int) {
	if m == nil {
		return
	}
	m.processing.Set(float64(n))
}
