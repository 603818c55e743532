package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kloudmate/jenkins-exporter/internal/collector"
	"github.com/kloudmate/jenkins-exporter/internal/jenkins"
	"github.com/kloudmate/jenkins-exporter/pkg/histogram"
)

const jenkinsPayload = `{"jobs":[
  {"name":"build-1","lastBuild":{"number":42,"duration":93500,"timestamp":1700000000000,
    "actions":[{"queuingDurationMillis":2500},{"failCount":5,"skipCount":3,"totalCount":100}]},
   "lastSuccessfulBuild":{"number":41,"duration":0,"timestamp":1699999000000},
   "lastFailedBuild":null},
  {"name":"team","jobs":[{"name":"deploy","lastCompletedBuild":{"number":7}}]}
]}`

func TestEndToEndExporter(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	logger := zaptest.NewLogger(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(jenkinsPayload))
	}))
	defer upstream.Close()

	tests := []struct {
		name string
		poll bool
	}{
		{"per scrape", false},
		{"polled snapshot", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := histogram.NewRecorder(histogram.DefaultBounds)
			require.NoError(t, err)

			client := jenkins.NewClient(&jenkins.Config{URL: upstream.URL, Timeout: 5 * time.Second}, rec, logger)

			var source collector.JobSource = client
			if tt.poll {
				poller, err := collector.NewPoller(client, time.Hour, logger)
				require.NoError(t, err)
				poller.Refresh(context.Background())
				source = poller
			}

			c := collector.NewCollector(&collector.Config{
				Bounds:        rec.Bounds(),
				HistogramJob:  "jenkins_api",
				HistogramPool: "127.0.0.1",
				ScrapeTimeout: 5 * time.Second,
			}, source, rec, logger)

			shared, err := NewRegistry(c.InternalMetrics()...)
			require.NoError(t, err)

			srv := httptest.NewServer(NewServer(&Config{}, c, shared, logger).Handler())
			defer srv.Close()

			families := scrape(t, srv.URL)

			gauge := func(name string) float64 {
				f, ok := families[name]
				require.True(t, ok, "missing %s", name)
				require.Len(t, f.GetMetric(), 1)
				return f.GetMetric()[0].GetGauge().GetValue()
			}

			assert.Equal(t, 42.0, gauge("jenkins_job_last_build"))
			assert.Equal(t, 93.5, gauge("jenkins_job_last_build_duration_seconds"))
			assert.Equal(t, 1700000000.0, gauge("jenkins_job_last_build_timestamp_seconds"))
			assert.Equal(t, 2.5, gauge("jenkins_job_last_build_queuing_duration_seconds"))
			assert.Equal(t, 92.0, gauge("jenkins_job_last_build_pass_count"))
			assert.Equal(t, 41.0, gauge("jenkins_job_last_successful_build"))
			assert.Equal(t, 7.0, gauge("jenkins_job_last_completed_build"))
			assert.NotContains(t, families, "jenkins_job_last_successful_build_duration_seconds")
			assert.NotContains(t, families, "jenkins_job_last_failed_build")

			completed := families["jenkins_job_last_completed_build"].GetMetric()[0]
			assert.Equal(t, "team/deploy", completed.GetLabel()[0].GetValue())

			size := families["request_size"].GetMetric()[0].GetHistogram()
			assert.Equal(t, uint64(2), size.GetSampleCount())
			assert.Equal(t, float64(len(jenkinsPayload)), size.GetSampleSum())

			labels := families["request_size"].GetMetric()[0].GetLabel()
			require.Len(t, labels, 2)
			assert.Equal(t, "job", labels[0].GetName())
			assert.Equal(t, "jenkins_api", labels[0].GetValue())
			assert.Equal(t, "pool", labels[1].GetName())
			assert.Equal(t, "127.0.0.1", labels[1].GetValue())
		})
	}
}
