package models

import (
	"fmt"
	"math"
)

type MetricType int8

const (
	MetricTypeUnknown MetricType = iota
	MetricTypeGauge
	MetricTypeHistogram
)

func (t MetricType) String() string {
	switch t {
	case MetricTypeGauge:
		return "gauge"
	case MetricTypeHistogram:
		return "histogram"
	default:
		return fmt.Sprintf("unknown(%d)", int8(t))
	}
}

type HistogramBucket struct {
	UpperBound float64
	Count      uint64
}

func (b HistogramBucket) IsInf() bool {
	return math.IsInf(b.UpperBound, 1)
}

type GaugeSample struct {
	LabelValues []string
	Value       float64
}

// HistogramSample holds cumulative buckets ordered by bound. The last bucket
// is always +Inf and its count is the number of observations in the window.
type HistogramSample struct {
	LabelValues []string
	Buckets     []HistogramBucket
	Sum         float64
}

func (s HistogramSample) Count() uint64 {
	if len(s.Buckets) == 0 {
		return 0
	}
	return s.Buckets[len(s.Buckets)-1].Count
}
