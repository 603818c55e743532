package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kloudmate/jenkins-exporter/internal/collector"
	"github.com/kloudmate/jenkins-exporter/internal/models"
	"github.com/kloudmate/jenkins-exporter/pkg/histogram"
)

type stubJobs struct {
	jobs []models.Job
	err  error
}

func (s *stubJobs) FetchJobs(context.Context) ([]models.Job, error) {
	return s.jobs, s.err
}

func ptr(v float64) *float64 { return &v }

func newTestServer(t *testing.T, jobs collector.JobSource) *httptest.Server {
	t.Helper()

	rec, err := histogram.NewRecorder(histogram.DefaultBounds)
	require.NoError(t, err)
	rec.Observe(5000)

	c := collector.NewCollector(&collector.Config{
		Bounds:        rec.Bounds(),
		HistogramJob:  "jenkins_api",
		HistogramPool: "jenkins",
		ScrapeTimeout: time.Second,
	}, jobs, rec, zap.NewNop())

	shared, err := NewRegistry(c.InternalMetrics()...)
	require.NoError(t, err)

	s := NewServer(&Config{Address: ":0"}, c, shared, zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func gaugeValue(t *testing.T, families map[string]*dto.MetricFamily, name string) float64 {
	t.Helper()

	f := families[name]
	require.NotNil(t, f, name)
	require.Len(t, f.GetMetric(), 1)
	return f.GetMetric()[0].GetGauge().GetValue()
}

func scrape(t *testing.T, url string) map[string]*dto.MetricFamily {
	t.Helper()

	resp, err := http.Get(url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	require.NoError(t, err)
	return families
}

func TestServer_Metrics(t *testing.T) {
	jobs := &stubJobs{jobs: []models.Job{{
		Name: "build-1",
		Builds: map[models.Status]*models.Build{
			models.StatusLastBuild: {Number: ptr(42), Duration: ptr(93500)},
		},
	}}}
	srv := newTestServer(t, jobs)

	families := scrape(t, srv.URL)

	number := families["jenkins_job_last_build"]
	require.NotNil(t, number)
	assert.Equal(t, dto.MetricType_GAUGE, number.GetType())
	require.Len(t, number.GetMetric(), 1)
	assert.Equal(t, 42.0, number.GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, "jobname", number.GetMetric()[0].GetLabel()[0].GetName())
	assert.Equal(t, "build-1", number.GetMetric()[0].GetLabel()[0].GetValue())

	duration := families["jenkins_job_last_build_duration_seconds"]
	require.NotNil(t, duration)
	assert.Equal(t, 93.5, duration.GetMetric()[0].GetGauge().GetValue())

	assert.NotContains(t, families, "jenkins_job_last_failed_build")

	size := families["request_size"]
	require.NotNil(t, size)
	assert.Equal(t, dto.MetricType_HISTOGRAM, size.GetType())
	h := size.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), h.GetSampleCount())
	assert.Equal(t, 5000.0, h.GetSampleSum())
	assert.Equal(t, uint64(0), h.GetBucket()[0].GetCumulativeCount())
	assert.Equal(t, uint64(1), h.GetBucket()[1].GetCumulativeCount())

	assert.Contains(t, families, "jenkins_collector_collect_seconds")
	assert.Contains(t, families, "go_goroutines")
}

func TestServer_SummaryCoversPreviousScrapes(t *testing.T) {
	srv := newTestServer(t, &stubJobs{})

	first := scrape(t, srv.URL)
	assert.Equal(t, uint64(0), first["jenkins_collector_collect_seconds"].GetMetric()[0].GetSummary().GetSampleCount())

	second := scrape(t, srv.URL)
	assert.Equal(t, uint64(1), second["jenkins_collector_collect_seconds"].GetMetric()[0].GetSummary().GetSampleCount())
}

func TestServer_UpstreamFailure(t *testing.T) {
	srv := newTestServer(t, &stubJobs{err: fmt.Errorf("%w: connection refused", models.ErrUpstreamUnavailable)})

	for i := 1; i <= 2; i++ {
		families := scrape(t, srv.URL)

		assert.NotContains(t, families, "request_size")
		assert.NotContains(t, families, "jenkins_job_last_build")

		errs := families["jenkins_collector_upstream_errors_total"]
		require.NotNil(t, errs)
		assert.Equal(t, float64(i), errs.GetMetric()[0].GetCounter().GetValue(), "scrape %d", i)
	}
}

func TestServer_StalenessReportedOnSameScrape(t *testing.T) {
	jobs := &stubJobs{jobs: []models.Job{{
		Name: "build-1",
		Builds: map[models.Status]*models.Build{
			models.StatusLastBuild: {Number: ptr(42)},
		},
	}}}
	poller, err := collector.NewPoller(jobs, time.Minute, zap.NewNop())
	require.NoError(t, err)
	srv := newTestServer(t, poller)

	poller.Refresh(context.Background())
	first := scrape(t, srv.URL)
	assert.Equal(t, 0.0, gaugeValue(t, first, "jenkins_collector_snapshot_stale"))
	assert.Equal(t, 42.0, gaugeValue(t, first, "jenkins_job_last_build"))

	jobs.err = fmt.Errorf("%w: connection refused", models.ErrUpstreamUnavailable)
	poller.Refresh(context.Background())
	second := scrape(t, srv.URL)
	assert.Equal(t, 1.0, gaugeValue(t, second, "jenkins_collector_snapshot_stale"))
	assert.Equal(t, 42.0, gaugeValue(t, second, "jenkins_job_last_build"))

	jobs.err = nil
	poller.Refresh(context.Background())
	third := scrape(t, srv.URL)
	assert.Equal(t, 0.0, gaugeValue(t, third, "jenkins_collector_snapshot_stale"))
}

func TestNewServer_KeepsCallerConfig(t *testing.T) {
	shared, err := NewRegistry()
	require.NoError(t, err)

	cfg := &Config{Address: "127.0.0.1:0"}
	c := collector.NewCollector(&collector.Config{}, &stubJobs{}, nil, zap.NewNop())
	s := NewServer(cfg, c, shared, zap.NewNop())

	assert.Zero(t, cfg.ShutdownTimeout)
	assert.Equal(t, 30*time.Second, s.config.ShutdownTimeout)
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(t, &stubJobs{})

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/", http.StatusOK, `href="/metrics"`},
		{"/missing", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), tt.contains)
		})
	}
}

func TestServer_StartShutdown(t *testing.T) {
	shared, err := NewRegistry()
	require.NoError(t, err)

	c := collector.NewCollector(&collector.Config{}, &stubJobs{}, nil, zap.NewNop())
	s := NewServer(&Config{Address: "127.0.0.1:0", ShutdownTimeout: time.Second}, c, shared, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Shutdown(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
