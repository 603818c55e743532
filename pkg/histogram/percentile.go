package histogram

import (
	"fmt"
	"math"

	"github.com/kloudmate/jenkins-exporter/internal/models"
)

// CalculatePercentile estimates a percentile (0-100) from cumulative buckets
// by linear interpolation inside the bucket that contains the target rank.
// Ranks that fall into the +Inf bucket resolve to the largest finite bound.
func CalculatePercentile(buckets []models.HistogramBucket, percentile float64) (float64, error) {
	if percentile < 0 || percentile > 100 {
		return 0, fmt.Errorf("percentile must be between 0 and 100, got %f", percentile)
	}

	if len(buckets) == 0 {
		return 0, fmt.Errorf("no buckets provided")
	}

	totalCount := buckets[len(buckets)-1].Count
	if totalCount == 0 {
		return 0, fmt.Errorf("total count is zero")
	}

	targetCount := float64(totalCount) * (percentile / 100.0)
	var previousBound float64
	var previousCount uint64

	for _, bucket := range buckets {
		if float64(bucket.Count) >= targetCount {
			if math.IsInf(bucket.UpperBound, 1) {
				return previousBound, nil
			}

			inBucket := bucket.Count - previousCount
			if inBucket == 0 {
				return bucket.UpperBound, nil
			}

			fraction := (targetCount - float64(previousCount)) / float64(inBucket)
			return previousBound + fraction*(bucket.UpperBound-previousBound), nil
		}
		previousBound = bucket.UpperBound
		previousCount = bucket.Count
	}

	return previousBound, nil
}

func CalculateMultiplePercentiles(buckets []models.HistogramBucket, percentiles []float64) (map[float64]float64, error) {
	results := make(map[float64]float64)

	for _, p := range percentiles {
		value, err := CalculatePercentile(buckets, p)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate percentile %f: %w", p, err)
		}
		results[p] = value
	}

	return results, nil
}
