package models

import (
	"fmt"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/common/model"
)

// MetricFamily is a named set of samples sharing help text and label names.
// Families are built fresh for every scrape and never reused.
type MetricFamily interface {
	Name() string
	Help() string
	LabelNames() []string
	Type() MetricType
	Validate() error
}

type familyBase struct {
	name       string
	help       string
	labelNames []string
	index      map[uint64]int
}

func newFamilyBase(name, help string, labelNames []string) familyBase {
	names := make([]string, len(labelNames))
	copy(names, labelNames)
	return familyBase{
		name:       name,
		help:       help,
		labelNames: names,
		index:      make(map[uint64]int),
	}
}

func (f *familyBase) Name() string { return f.name }

func (f *familyBase) Help() string { return f.help }

func (f *familyBase) LabelNames() []string { return f.labelNames }

// Validate checks the family and label names against the exposition grammar.
func (f *familyBase) Validate() error {
	if !model.IsValidMetricName(model.LabelValue(f.name)) {
		return fmt.Errorf("%w: metric %q", ErrInvalidName, f.name)
	}
	for _, ln := range f.labelNames {
		if !model.LabelName(ln).IsValid() {
			return fmt.Errorf("%w: label %q in %s", ErrInvalidName, ln, f.name)
		}
	}
	return nil
}

func (f *familyBase) checkLabelValues(labelValues []string) error {
	if len(labelValues) != len(f.labelNames) {
		return fmt.Errorf("%w: %s expects %d label values, got %d",
			ErrLabelArityMismatch, f.name, len(f.labelNames), len(labelValues))
	}
	// Invalid UTF-8 may contain the separator byte, so two distinct label
	// sets could share a key.
	for i, v := range labelValues {
		if !utf8.ValidString(v) {
			return fmt.Errorf("%w: %s label %s", ErrInvalidLabelValue, f.name, f.labelNames[i])
		}
	}
	return nil
}

// slot returns the sample position for labelValues and whether it already exists.
func (f *familyBase) slot(labelValues []string, next int) (int, bool) {
	key := labelKey(labelValues)
	if i, ok := f.index[key]; ok {
		return i, true
	}
	f.index[key] = next
	return next, false
}

func labelKey(values []string) uint64 {
	h := xxhash.New()
	for _, v := range values {
		h.WriteString(v)
		h.Write([]byte{model.SeparatorByte})
	}
	return h.Sum64()
}

func cloneValues(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

type GaugeFamily struct {
	familyBase
	samples []GaugeSample
}

func NewGaugeFamily(name, help string, labelNames []string) *GaugeFamily {
	return &GaugeFamily{familyBase: newFamilyBase(name, help, labelNames)}
}

func (f *GaugeFamily) Type() MetricType { return MetricTypeGauge }

// AddSample records value for labelValues. A second sample with the same label
// values replaces the first one in place.
func (f *GaugeFamily) AddSample(labelValues []string, value float64) error {
	if err := f.checkLabelValues(labelValues); err != nil {
		return err
	}

	i, exists := f.slot(labelValues, len(f.samples))
	if exists {
		f.samples[i].Value = value
		return nil
	}

	f.samples = append(f.samples, GaugeSample{
		LabelValues: cloneValues(labelValues),
		Value:       value,
	})
	return nil
}

func (f *GaugeFamily) Samples() []GaugeSample {
	return f.samples
}

type HistogramFamily struct {
	familyBase
	samples []HistogramSample
}

func NewHistogramFamily(name, help string, labelNames []string) *HistogramFamily {
	return &HistogramFamily{familyBase: newFamilyBase(name, help, labelNames)}
}

func (f *HistogramFamily) Type() MetricType { return MetricTypeHistogram }

// AddHistogramSample appends one histogram sample. Bucket ordering is the
// caller's responsibility, see histogram.Accumulate.
func (f *HistogramFamily) AddHistogramSample(labelValues []string, buckets []HistogramBucket, sum float64) error {
	if err := f.checkLabelValues(labelValues); err != nil {
		return err
	}

	sample := HistogramSample{
		LabelValues: cloneValues(labelValues),
		Buckets:     append([]HistogramBucket(nil), buckets...),
		Sum:         sum,
	}

	i, exists := f.slot(labelValues, len(f.samples))
	if exists {
		f.samples[i] = sample
		return nil
	}
	f.samples = append(f.samples, sample)
	return nil
}

func (f *HistogramFamily) Samples() []HistogramSample {
	return f.samples
}
