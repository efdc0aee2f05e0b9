package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRunKeepsLatestPerPipeline(t *testing.T) {
	m := NewMetrics()
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	m.RecordRun(RunSummary{Pipeline: PipelineSlaMonitor, StartedAt: start, FinishedAt: start.Add(time.Second), Counts: map[string]int{"breaches": 1}})
	m.RecordRun(RunSummary{Pipeline: PipelineIngestion, StartedAt: start, FinishedAt: start.Add(2 * time.Second)})
	m.RecordRun(RunSummary{Pipeline: PipelineSlaMonitor, StartedAt: start.Add(time.Minute), FinishedAt: start.Add(time.Minute), Counts: map[string]int{"breaches": 0}})

	runs := m.LastRuns()
	require.Len(t, runs, 2)
	assert.Equal(t, PipelineIngestion, runs[0].Pipeline)
	assert.Equal(t, 2*time.Second, runs[0].Duration())
	assert.Equal(t, 0, runs[1].Counts["breaches"])
	assert.Equal(t, int64(2), m.RunCount(PipelineSlaMonitor))
}

func TestHandlerExportsCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tenants/:tenantId/rules", http.MethodGet, http.StatusOK, 20*time.Millisecond)
	m.RecordRequest("/tenants/:tenantId/rules", http.MethodGet, http.StatusOK, 30*time.Millisecond)
	m.RecordError("/inbound/:mailboxId", http.MethodPost, "NOT_FOUND")
	m.RecordRun(RunSummary{Pipeline: PipelineIngestion, Counts: map[string]int{"created": 3, "failed": 1}, Errors: []string{"acme: imap timeout"}})

	assert.Equal(t, int64(2), m.RequestCount("/tenants/:tenantId/rules", http.MethodGet, http.StatusOK))
	assert.Zero(t, m.RequestCount("/tenants/:tenantId/rules", http.MethodGet, http.StatusNotFound))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `supporthub_http_requests_total{method="GET",route="/tenants/:tenantId/rules",status="200"} 2`)
	assert.Contains(t, text, `supporthub_http_errors_total{code="NOT_FOUND",method="POST",route="/inbound/:mailboxId"} 1`)
	assert.Contains(t, text, `supporthub_pipeline_items_total{outcome="created",pipeline="ingestion"} 3`)
	assert.Contains(t, text, `supporthub_pipeline_tenant_errors_total{pipeline="ingestion"} 1`)
	assert.Contains(t, text, "go_goroutines")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRun(RunSummary{Pipeline: PipelineIngestion})
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "INTERNAL")
	assert.Nil(t, m.LastRuns())
	assert.Zero(t, m.RunCount(PipelineIngestion))
}
