package collector

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kloudmate/jenkins-exporter/internal/models"
)

// Describe sends nothing, which makes the collector unchecked: the set of
// families depends on what Jenkins returns.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect lets the collector be registered directly. Each call is a scrape
// bounded by the configured timeout.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()
	if c.config.ScrapeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ScrapeTimeout)
		defer cancel()
	}
	c.emit(ctx, ch)
}

// ForScrape binds one scrape to ctx, normally the request context of the
// /metrics call.
func (c *Collector) ForScrape(ctx context.Context) prometheus.Collector {
	return &scrape{ctx: ctx, c: c}
}

type scrape struct {
	ctx context.Context
	c   *Collector
}

func (s *scrape) Describe(chan<- *prometheus.Desc) {}

func (s *scrape) Collect(ch chan<- prometheus.Metric) {
	s.c.emit(s.ctx, ch)
}

func (c *Collector) emit(ctx context.Context, ch chan<- prometheus.Metric) {
	families, stale := c.collect(ctx)
	for _, family := range families {
		metrics, err := toMetrics(family)
		if err != nil {
			c.logger.Error("Skipping metric family", zap.String("family", family.Name()), zap.Error(err))
			continue
		}
		for _, m := range metrics {
			ch <- m
		}
	}

	ch <- prometheus.MustNewConstMetric(c.staleDesc, prometheus.GaugeValue, boolToFloat(stale))
	c.upstreamErrors.Collect(ch)
}

func toMetrics(family models.MetricFamily) ([]prometheus.Metric, error) {
	if err := family.Validate(); err != nil {
		return nil, err
	}
	desc := prometheus.NewDesc(family.Name(), family.Help(), family.LabelNames(), nil)

	switch f := family.(type) {
	case *models.GaugeFamily:
		samples := f.Samples()
		out := make([]prometheus.Metric, 0, len(samples))
		for _, s := range samples {
			m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, s.Value, s.LabelValues...)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, nil

	case *models.HistogramFamily:
		samples := f.Samples()
		out := make([]prometheus.Metric, 0, len(samples))
		for _, s := range samples {
			buckets := make(map[float64]uint64, len(s.Buckets))
			for _, b := range s.Buckets {
				if b.IsInf() {
					continue
				}
				buckets[b.UpperBound] = b.Count
			}
			m, err := prometheus.NewConstHistogram(desc, s.Count(), s.Sum, buckets, s.LabelValues...)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, nil
	}

	return nil, fmt.Errorf("unsupported metric type %s", family.Type())
}
