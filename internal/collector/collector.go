package collector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kloudmate/jenkins-exporter/internal/mapper"
	"github.com/kloudmate/jenkins-exporter/internal/models"
	"github.com/kloudmate/jenkins-exporter/pkg/histogram"
)

const (
	HistogramName = "request_size"
	HistogramHelp = "Size of job API responses in bytes"
)

var HistogramLabels = []string{"job", "pool"}

type State int32

const (
	StateIdle State = iota
	StateCollecting
)

func (s State) String() string {
	if s == StateCollecting {
		return "collecting"
	}
	return "idle"
}

// JobSource returns the current status record of every monitored job.
type JobSource interface {
	FetchJobs(ctx context.Context) ([]models.Job, error)
}

// WindowSource hands over the request size observations gathered since the
// previous scrape.
type WindowSource interface {
	Swap() histogram.Window
}

// staleReporter is implemented by sources that serve cached data.
type staleReporter interface {
	Stale() bool
}

type Config struct {
	Bounds        []float64
	HistogramJob  string
	HistogramPool string
	// ScrapeTimeout bounds scrapes that arrive without a deadline of their own.
	ScrapeTimeout time.Duration
}

type Collector struct {
	logger *zap.Logger
	config *Config
	jobs   JobSource
	window WindowSource

	mu    sync.Mutex
	state atomic.Int32

	collectDuration prometheus.Summary
	upstreamErrors  prometheus.Counter
	staleDesc       *prometheus.Desc
}

func NewCollector(cfg *Config, jobs JobSource, window WindowSource, logger *zap.Logger) *Collector {
	config := *cfg
	if len(config.Bounds) == 0 {
		config.Bounds = histogram.DefaultBounds
	}

	return &Collector{
		logger: logger,
		config: &config,
		jobs:   jobs,
		window: window,
		collectDuration: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: "jenkins_collector_collect_seconds",
			Help: "Time spent to collect metrics from Jenkins",
		}),
		upstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jenkins_collector_upstream_errors_total",
			Help: "Scrapes that could not read job status from Jenkins",
		}),
		staleDesc: prometheus.NewDesc(
			"jenkins_collector_snapshot_stale",
			"1 when job metrics are served from a snapshot whose last refresh failed or is still running",
			nil, nil),
	}
}

// InternalMetrics are the collector's own metrics that live on the long-lived
// registry. The upstream error counter and the staleness flag are emitted by
// each scrape instead, so they describe the page they appear on.
func (c *Collector) InternalMetrics() []prometheus.Collector {
	return []prometheus.Collector{c.collectDuration}
}

func (c *Collector) State() State {
	return State(c.state.Load())
}

// CollectFamilies runs one scrape: job gauges in declared order followed by
// the request size histogram. A failed fetch or a cancelled scrape yields no
// families; errors never leave this method.
func (c *Collector) CollectFamilies(ctx context.Context) []models.MetricFamily {
	families, _ := c.collect(ctx)
	return families
}

// collect also reports whether the job data came from a stale snapshot.
func (c *Collector) collect(ctx context.Context) ([]models.MetricFamily, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Store(int32(StateCollecting))
	defer c.state.Store(int32(StateIdle))

	start := time.Now()
	defer func() {
		c.collectDuration.Observe(time.Since(start).Seconds())
	}()

	logger := c.logger.With(zap.String("scrape_id", uuid.NewString()))

	jobs, err := c.jobs.FetchJobs(ctx)
	var stale bool
	if sr, ok := c.jobs.(staleReporter); ok {
		stale = sr.Stale()
	}
	if err != nil {
		c.upstreamErrors.Inc()
		logger.Error("Failed to fetch job status", zap.Error(err))
		return nil, stale
	}

	gauges := mapper.NewGaugeSet()
	for _, job := range jobs {
		for _, issue := range job.Issues {
			logger.Warn("Skipping malformed field", zap.String("job", job.Name), zap.Error(issue))
		}
		for _, err := range gauges.Map(job) {
			logger.Warn("Failed to add sample", zap.String("job", job.Name), zap.Error(err))
		}
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("Scrape cancelled", zap.Error(err))
		return nil, stale
	}

	declared := gauges.Families()
	families := make([]models.MetricFamily, 0, len(declared)+1)
	for _, f := range declared {
		families = append(families, f)
	}
	if h := c.requestSizeFamily(logger); h != nil {
		families = append(families, h)
	}

	logger.Debug("Collected metrics",
		zap.Int("jobs", len(jobs)),
		zap.Int("families", len(families)),
		zap.Duration("elapsed", time.Since(start)))

	return families, stale
}

func (c *Collector) requestSizeFamily(logger *zap.Logger) *models.HistogramFamily {
	if c.window == nil {
		return nil
	}

	family := models.NewHistogramFamily(HistogramName, HistogramHelp, HistogramLabels)

	w := c.window.Swap()
	buckets, err := histogram.Accumulate(c.config.Bounds, w, histogram.ScrapeMarker)
	if err != nil {
		logger.Error("Dropping request size sample", zap.Error(err))
		return family
	}

	if err := family.AddHistogramSample([]string{c.config.HistogramJob, c.config.HistogramPool}, buckets, w.Sum); err != nil {
		logger.Error("Dropping request size sample", zap.Error(err))
		return family
	}

	if ce := logger.Check(zap.DebugLevel, "Request size window"); ce != nil && w.Observations > 0 {
		p, err := histogram.CalculateMultiplePercentiles(buckets, []float64{50, 99})
		if err == nil {
			ce.Write(
				zap.Uint64("observations", w.Observations),
				zap.Float64("sum_bytes", w.Sum),
				zap.Float64("p50_bytes", p[50]),
				zap.Float64("p99_bytes", p[99]))
		}
	}

	return family
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
