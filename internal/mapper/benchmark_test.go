package mapper

import (
	"fmt"
	"testing"

	"github.com/kloudmate/jenkins-exporter/internal/models"
)

func benchJobs(n int) []models.Job {
	v := func(f float64) *float64 { return &f }
	jobs := make([]models.Job, n)
	for i := range jobs {
		build := &models.Build{
			Number:    v(float64(i + 1)),
			Duration:  v(60000),
			Timestamp: v(1700000000000),
			Actions: []models.Action{
				{QueuingDurationMillis: v(1500), TotalDurationMillis: v(61500)},
				{FailCount: v(2), SkipCount: v(1), TotalCount: v(400)},
			},
		}
		jobs[i] = models.Job{
			Name:   fmt.Sprintf("team-%d/service-%d", i%10, i),
			Builds: map[models.Status]*models.Build{},
		}
		for _, s := range models.Statuses {
			jobs[i].Builds[s] = build
		}
	}
	return jobs
}

func BenchmarkGaugeSetMap(b *testing.B) {
	jobs := benchJobs(500)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		g := NewGaugeSet()
		for _, job := range jobs {
			if errs := g.Map(job); len(errs) > 0 {
				b.Fatalf("Map failed: %v", errs[0])
			}
		}
	}
}
