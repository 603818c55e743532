package mapper

import (
	"fmt"

	"github.com/kloudmate/jenkins-exporter/internal/models"
)

// JobLabel is the single label every job gauge carries.
const JobLabel = "jobname"

// Field is a per-status sub-metric exported as its own gauge family.
type Field int

const (
	FieldNumber Field = iota
	FieldDuration
	FieldTimestamp
	FieldQueuingDuration
	FieldTotalDuration
	FieldSkipCount
	FieldFailCount
	FieldTotalCount
	FieldPassCount

	NumFields = int(FieldPassCount) + 1
)

type fieldSpec struct {
	suffix string
	help   string
}

var fieldSpecs = [NumFields]fieldSpec{
	FieldNumber:          {"", "Jenkins build number for %s"},
	FieldDuration:        {"_duration_seconds", "Jenkins build duration in seconds for %s"},
	FieldTimestamp:       {"_timestamp_seconds", "Jenkins build timestamp in unixtime for %s"},
	FieldQueuingDuration: {"_queuing_duration_seconds", "Jenkins build queuing duration in seconds for %s"},
	FieldTotalDuration:   {"_total_duration_seconds", "Jenkins build total duration in seconds for %s"},
	FieldSkipCount:       {"_skip_count", "Jenkins build skip counts for %s"},
	FieldFailCount:       {"_fail_count", "Jenkins build fail counts for %s"},
	FieldTotalCount:      {"_total_count", "Jenkins build total counts for %s"},
	FieldPassCount:       {"_pass_count", "Jenkins build pass counts for %s"},
}

func FamilyName(s models.Status, f Field) string {
	return "jenkins_job_" + s.SnakeCase() + fieldSpecs[f].suffix
}

func familyHelp(s models.Status, f Field) string {
	return fmt.Sprintf(fieldSpecs[f].help, s)
}

// GaugeSet is the declared set of job gauge families for one scrape, one per
// status and field.
type GaugeSet struct {
	families [models.NumStatuses][NumFields]*models.GaugeFamily
}

func NewGaugeSet() *GaugeSet {
	g := &GaugeSet{}
	for _, s := range models.Statuses {
		for f := Field(0); int(f) < NumFields; f++ {
			g.families[s][f] = models.NewGaugeFamily(FamilyName(s, f), familyHelp(s, f), []string{JobLabel})
		}
	}
	return g
}

func (g *GaugeSet) Family(s models.Status, f Field) *models.GaugeFamily {
	return g.families[s][f]
}

// Families returns every family in declared order: statuses first, then fields.
func (g *GaugeSet) Families() []*models.GaugeFamily {
	out := make([]*models.GaugeFamily, 0, models.NumStatuses*NumFields)
	for _, s := range models.Statuses {
		out = append(out, g.families[s][:]...)
	}
	return out
}

// Map adds the samples of one job. Errors are per sample and do not stop the
// remaining fields from being mapped.
func (g *GaugeSet) Map(job models.Job) []error {
	var errs []error
	for _, s := range models.Statuses {
		build, ok := job.Builds[s]
		if !ok {
			continue
		}
		if build == nil {
			build = &models.Build{}
		}
		errs = append(errs, g.mapBuild(s, job.Name, build)...)
	}
	return errs
}

// mapBuild treats a zero value like an absent one: Jenkins reports 0 for
// builds that never ran, so a genuine zero duration is not exported either.
func (g *GaugeSet) mapBuild(s models.Status, name string, b *models.Build) []error {
	labels := []string{name}
	var errs []error
	add := func(f Field, v float64) {
		if err := g.families[s][f].AddSample(labels, v); err != nil {
			errs = append(errs, err)
		}
	}

	if truthy(b.Duration) {
		add(FieldDuration, *b.Duration/1000.0)
	}
	if truthy(b.Timestamp) {
		add(FieldTimestamp, *b.Timestamp/1000.0)
	}
	if truthy(b.Number) {
		add(FieldNumber, *b.Number)
	}

	for _, a := range b.Actions {
		if truthy(a.QueuingDurationMillis) {
			add(FieldQueuingDuration, *a.QueuingDurationMillis/1000.0)
		}
		if truthy(a.TotalDurationMillis) {
			add(FieldTotalDuration, *a.TotalDurationMillis/1000.0)
		}
		if truthy(a.SkipCount) {
			add(FieldSkipCount, *a.SkipCount)
		}
		if truthy(a.FailCount) {
			add(FieldFailCount, *a.FailCount)
		}
		if truthy(a.TotalCount) {
			add(FieldTotalCount, *a.TotalCount)
			add(FieldPassCount, *a.TotalCount-valueOf(a.FailCount)-valueOf(a.SkipCount))
		}
	}

	return errs
}

func truthy(v *float64) bool {
	return v != nil && *v != 0
}

func valueOf(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
