package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics глобальный контейнер метрик
type Metrics struct {
	// HTTP метрики
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Генерация отчётов
	ReportsGeneratedTotal *prometheus.CounterVec
	ReportDuration        *prometheus.HistogramVec
	ReportSizeBytes       *prometheus.HistogramVec
	ReportRows            *prometheus.HistogramVec
	DownloadsTotal        *prometheus.CounterVec

	// Кэш артефактов
	ArtifactsCached prometheus.Gauge

	// Reaper
	ReaperSweepsTotal    *prometheus.CounterVec
	ReaperReclaimedTotal prometheus.Counter
	ReaperFailuresTotal  prometheus.Counter
	ReaperSweepDuration  prometheus.Histogram

	// Информация о сервисе
	ServiceInfo *prometheus.GaugeVec
}

var (
	defaultMetrics *Metrics
	defaultMu      sync.Mutex
)

// InitMetrics инициализирует метрики в глобальном реестре Prometheus
func InitMetrics(namespace, subsystem string) *Metrics {
	m := New(prometheus.DefaultRegisterer, namespace, subsystem)

	defaultMu.Lock()
	defaultMetrics = m
	defaultMu.Unlock()

	return m
}

// New создаёт набор метрик в указанном реестре
func New(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),

		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"route"},
		),

		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		ReportsGeneratedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "generated_total",
				Help:      "Total number of report generation attempts",
			},
			[]string{"report_type", "format", "status"},
		),

		ReportDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "generation_duration_seconds",
				Help:      "Duration of report generation (query and render)",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"report_type", "format"},
		),

		ReportSizeBytes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "artifact_size_bytes",
				Help:      "Size of generated artifacts",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
			},
			[]string{"format"},
		),

		ReportRows: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "report_rows",
				Help:      "Number of rows in generated reports",
				Buckets:   []float64{0, 10, 100, 1000, 10000, 100000},
			},
			[]string{"report_type"},
		),

		DownloadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "downloads_total",
				Help:      "Total number of artifact download attempts",
			},
			[]string{"status"},
		),

		ArtifactsCached: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "artifacts_cached",
				Help:      "Number of artifacts currently registered in the index",
			},
		),

		ReaperSweepsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reaper_sweeps_total",
				Help:      "Total number of reaper sweeps",
			},
			[]string{"trigger", "status"},
		),

		ReaperReclaimedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reaper_reclaimed_total",
				Help:      "Total number of expired artifacts reclaimed",
			},
		),

		ReaperFailuresTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reaper_failures_total",
				Help:      "Total number of artifact files the reaper failed to delete",
			},
		),

		ReaperSweepDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reaper_sweep_duration_seconds",
				Help:      "Duration of reaper sweeps",
				Buckets:   []float64{.001, .01, .1, .5, 1, 5, 30},
			},
		),

		ServiceInfo: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}
}

// Get возвращает глобальные метрики
func Get() *Metrics {
	defaultMu.Lock()
	m := defaultMetrics
	defaultMu.Unlock()

	if m == nil {
		return InitMetrics("workshop", "reports")
	}
	return m
}

// NewNop создаёт метрики в собственном реестре, не видимом в /metrics.
// Используется в тестах и там, где экспорт не нужен.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry(), "nop", "")
}

// RecordHTTPRequest записывает метрики HTTP запроса
func (m *Metrics) RecordHTTPRequest(route, method, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// GenerationTimer засекает длительность генерации отчёта
func (m *Metrics) GenerationTimer(reportType, format string) *Timer {
	return NewTimer(m.ReportDuration, reportType, format)
}

// RecordGeneration записывает результат генерации отчёта.
// Длительность пишет таймер из GenerationTimer.
func (m *Metrics) RecordGeneration(reportType, format string, success bool, sizeBytes int64, rows int) {
	status := "success"
	if !success {
		status = "error"
	}

	m.ReportsGeneratedTotal.WithLabelValues(reportType, format, status).Inc()
	if success {
		m.ReportSizeBytes.WithLabelValues(format).Observe(float64(sizeBytes))
		m.ReportRows.WithLabelValues(reportType).Observe(float64(rows))
	}
}

// RecordDownload записывает попытку скачивания
func (m *Metrics) RecordDownload(found bool) {
	status := "ok"
	if !found {
		status = "not_found"
	}
	m.DownloadsTotal.WithLabelValues(status).Inc()
}

// RecordSweep записывает результат прохода reaper
func (m *Metrics) RecordSweep(trigger string, reclaimed, failures int, duration time.Duration) {
	status := "ok"
	if failures > 0 {
		status = "partial"
	}

	m.ReaperSweepsTotal.WithLabelValues(trigger, status).Inc()
	m.ReaperReclaimedTotal.Add(float64(reclaimed))
	m.ReaperFailuresTotal.Add(float64(failures))
	m.ReaperSweepDuration.Observe(duration.Seconds())
}

// SetArtifactsCached обновляет число артефактов в индексе
func (m *Metrics) SetArtifactsCached(n int) {
	m.ArtifactsCached.Set(float64(n))
}

// SetServiceInfo устанавливает информацию о сервисе
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler возвращает HTTP handler для /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
