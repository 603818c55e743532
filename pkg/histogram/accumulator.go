package histogram

import (
	"errors"
	"fmt"
	"math"

	"github.com/kloudmate/jenkins-exporter/internal/models"
)

// ScrapeMarker is the extra +Inf-only observation recorded for every
// completed scrape.
const ScrapeMarker uint64 = 1

var (
	ErrNonMonotonicBuckets   = errors.New("bucket bounds are not strictly increasing")
	ErrInconsistentHistogram = errors.New("histogram +Inf count does not match observation count")
)

// DefaultBounds are the request size buckets in bytes, 4KiB to 2MiB.
var DefaultBounds = []float64{
	4096, 8192, 16384, 32768, 65536, 131072, 262144, 524288, 1048576, 2097152,
}

// ValidateBounds reports whether bounds are finite and strictly increasing.
func ValidateBounds(bounds []float64) error {
	prev := math.Inf(-1)
	for i, b := range bounds {
		if math.IsInf(b, 0) || !(b > prev) {
			return fmt.Errorf("%w: bound %d is %v after %v", ErrNonMonotonicBuckets, i, b, prev)
		}
		prev = b
	}
	return nil
}

// Accumulate turns the raw per-bucket counts of a window into cumulative
// buckets. Every declared bound appears in the output even when its count is
// zero, and a final +Inf bucket carries the overflow plus terminal
// observations that belong to no finite bound.
func Accumulate(bounds []float64, w Window, terminal uint64) ([]models.HistogramBucket, error) {
	if err := ValidateBounds(bounds); err != nil {
		return nil, err
	}

	buckets := make([]models.HistogramBucket, 0, len(bounds)+1)
	var running uint64
	for _, bound := range bounds {
		running += w.Counts[bound]
		buckets = append(buckets, models.HistogramBucket{
			UpperBound: bound,
			Count:      running,
		})
	}

	running += w.Overflow + terminal
	buckets = append(buckets, models.HistogramBucket{
		UpperBound: math.Inf(1),
		Count:      running,
	})

	if want := w.Observations + terminal; running != want {
		return nil, fmt.Errorf("%w: buckets hold %d observations, window recorded %d",
			ErrInconsistentHistogram, running, want)
	}

	return buckets, nil
}
