package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersInOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test", "reports")

	require.NotNil(t, m.HTTPRequestsTotal)
	require.NotNil(t, m.ReportsGeneratedTotal)
	require.NotNil(t, m.ReaperSweepsTotal)

	// Повторная регистрация в другом реестре не паникует
	assert.NotPanics(t, func() { New(prometheus.NewRegistry(), "test", "reports") })
}

func TestGet_ReturnsSameInstance(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	defaultMetrics = nil
	m := Get()
	require.NotNil(t, m)
	assert.Same(t, m, Get())
}

func TestRecordGeneration(t *testing.T) {
	m := NewNop()

	m.RecordGeneration("SALES", "CSV", true, 2048, 10)
	m.RecordGeneration("SALES", "CSV", false, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsGeneratedTotal.WithLabelValues("SALES", "CSV", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsGeneratedTotal.WithLabelValues("SALES", "CSV", "error")))
}

func TestRecordSweep(t *testing.T) {
	m := NewNop()

	m.RecordSweep("timer", 3, 0, time.Millisecond)
	m.RecordSweep("manual", 2, 1, time.Millisecond)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.ReaperReclaimedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReaperFailuresTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReaperSweepsTotal.WithLabelValues("manual", "partial")))
}

func TestRecordDownloadAndGauge(t *testing.T) {
	m := NewNop()

	m.RecordDownload(true)
	m.RecordDownload(false)
	m.SetArtifactsCached(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DownloadsTotal.WithLabelValues("not_found")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ArtifactsCached))
}

func TestRequestTracker(t *testing.T) {
	m := NewNop()
	tr := NewRequestTracker(m.HTTPRequestsInFlight)

	tr.Start("/api/v1/reports")
	tr.Start("/api/v1/reports")
	assert.Equal(t, 2, tr.Active("/api/v1/reports"))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsInFlight))

	tr.End("/api/v1/reports")
	tr.End("/api/v1/reports")
	tr.End("/api/v1/reports") // лишний End не уводит счётчик в минус
	assert.Equal(t, 0, tr.Active("/api/v1/reports"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsInFlight))
}

func TestRuntimeCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterRuntime(reg, "test"))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestGenerationTimer(t *testing.T) {
	m := NewNop()
	timer := m.GenerationTimer("SALES", "PDF")
	time.Sleep(time.Millisecond)
	assert.Greater(t, timer.ObserveDuration(), time.Duration(0))

	assert.Equal(t, 1, testutil.CollectAndCount(m.ReportDuration))
	assert.Zero(t, testutil.ToFloat64(m.ReportsGeneratedTotal.WithLabelValues("SALES", "PDF", "success")),
		"timer observes duration only")
}
