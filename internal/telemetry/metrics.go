package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics — Prometheus метрики выполнения pipeline.
//
// Метрики регистрируются в собственном реестре, а не в глобальном.
//
// nil *Metrics допустим: все методы в этом случае ничего не делают.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	cacheBytes    prometheus.Histogram
	lastRunFinish prometheus.Gauge
}

// NewMetrics создаёт метрики в новом реестре.
// withRuntime добавляет стандартные go_* и process_* коллекторы.
func NewMetrics(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dash_runs_total",
			Help: "Total number of pipeline runs by final status",
		}, []string{"status"}),

		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dash_steps_total",
			Help: "Total number of executed steps",
		}, []string{"kind", "medium", "status"}),

		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dash_step_duration_seconds",
			Help:    "Step execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "medium"}),

		cacheBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dash_cache_entry_bytes",
			Help:    "Size of values published to the cache",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		}),

		lastRunFinish: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dash_last_run_timestamp_seconds",
			Help: "Unix time of the last finished run",
		}),
	}

	m.registry.MustRegister(m.runsTotal, m.stepsTotal, m.stepDuration, m.cacheBytes, m.lastRunFinish)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry возвращает реестр метрик.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStep учитывает завершённый шаг.
func (m *Metrics) ObserveStep(kind, medium, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(kind, medium, status).Inc()
	m.stepDuration.WithLabelValues(kind, medium).Observe(d.Seconds())
}

// ObserveCacheEntry учитывает размер значения, записанного в кэш.
func (m *Metrics) ObserveCacheEntry(bytes int) {
	if m == nil {
		return
	}
	m.cacheBytes.Observe(float64(bytes))
}

// ObserveRun учитывает завершённый run.
func (m *Metrics) ObserveRun(status string, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.lastRunFinish.Set(float64(finishedAt.Unix()))
}

// WriteTextfile записывает метрики в файл в формате textfile collector
// node_exporter. Файл заменяется атомарно.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// Handler возвращает HTTP handler для /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
