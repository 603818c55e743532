package histogram

import (
	"math"
	"sort"
	"sync"
)

// Window holds the raw, non-cumulative observations of one scrape interval.
type Window struct {
	// Counts is keyed by declared upper bound.
	Counts map[float64]uint64
	// Overflow counts observations above the largest declared bound.
	Overflow     uint64
	Sum          float64
	Observations uint64
}

// Recorder collects observations into a window that is swapped out on every
// scrape.
type Recorder struct {
	bounds []float64

	mu      sync.Mutex
	current Window
}

func NewRecorder(bounds []float64) (*Recorder, error) {
	if err := ValidateBounds(bounds); err != nil {
		return nil, err
	}

	r := &Recorder{
		bounds: append([]float64(nil), bounds...),
	}
	r.current = r.emptyWindow()
	return r, nil
}

func (r *Recorder) Bounds() []float64 {
	return r.bounds
}

// Observe records v in the smallest bucket whose bound is >= v.
func (r *Recorder) Observe(v float64) {
	if math.IsNaN(v) {
		return
	}

	i := sort.SearchFloat64s(r.bounds, v)

	r.mu.Lock()
	defer r.mu.Unlock()

	if i < len(r.bounds) {
		r.current.Counts[r.bounds[i]]++
	} else {
		r.current.Overflow++
	}
	r.current.Sum += v
	r.current.Observations++
}

// Swap returns the current window and starts an empty one.
func (r *Recorder) Swap() Window {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.current
	r.current = r.emptyWindow()
	return w
}

func (r *Recorder) emptyWindow() Window {
	return Window{Counts: make(map[float64]uint64, len(r.bounds))}
}
