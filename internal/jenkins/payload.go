package jenkins

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kloudmate/jenkins-exporter/internal/models"
)

// ParseJobs decodes an /api/json response. Only a body that is not an object
// with a jobs array fails as a whole; unreadable job entries are returned as
// issues and unreadable fields end up in the job's Issues.
func ParseJobs(body []byte) ([]models.Job, []error, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", models.ErrMalformedPayload, err)
	}

	rawJobs, ok := root["jobs"]
	if !ok {
		return nil, nil, fmt.Errorf("%w: response has no jobs array", models.ErrMalformedPayload)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(rawJobs, &entries); err != nil {
		return nil, nil, fmt.Errorf("%w: jobs: %w", models.ErrMalformedPayload, err)
	}

	p := &parser{}
	p.walk("", entries)
	return p.jobs, p.issues, nil
}

type parser struct {
	jobs   []models.Job
	issues []error
}

func (p *parser) walk(prefix string, entries []json.RawMessage) {
	for i, raw := range entries {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			p.issues = append(p.issues, fmt.Errorf("%w: %sjobs[%d]: %w", models.ErrMalformedPayload, prefix, i, err))
			continue
		}

		var name string
		if err := json.Unmarshal(fields["name"], &name); err != nil || name == "" {
			p.issues = append(p.issues, fmt.Errorf("%w: %sjobs[%d] has no name", models.ErrMalformedPayload, prefix, i))
			continue
		}
		name = prefix + name

		job := models.Job{Name: name, Builds: make(map[models.Status]*models.Build)}
		for _, s := range models.Statuses {
			rawBuild, ok := fields[s.String()]
			if !ok {
				continue
			}
			build, issues := parseBuild(name, s, rawBuild)
			job.Builds[s] = build
			job.Issues = append(job.Issues, issues...)
		}

		children, isFolder := fields["jobs"]
		if isFolder && !isNull(children) {
			var nested []json.RawMessage
			if err := json.Unmarshal(children, &nested); err != nil {
				job.Issues = append(job.Issues, malformed(name, "jobs", err))
			} else {
				p.walk(name+"/", nested)
			}
			if len(job.Builds) == 0 && len(job.Issues) == 0 {
				continue
			}
		}

		p.jobs = append(p.jobs, job)
	}
}

func parseBuild(job string, s models.Status, raw json.RawMessage) (*models.Build, []error) {
	if isNull(raw) {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, []error{malformed(job, s.String(), err)}
	}

	var issues []error
	number := func(key string) *float64 {
		v, err := numberField(fields, key)
		if err != nil {
			issues = append(issues, malformed(job, s.String()+"."+key, err))
		}
		return v
	}

	build := &models.Build{
		Number:    number("number"),
		Duration:  number("duration"),
		Timestamp: number("timestamp"),
	}

	rawActions, ok := fields["actions"]
	if !ok || isNull(rawActions) {
		return build, issues
	}

	var actions []json.RawMessage
	if err := json.Unmarshal(rawActions, &actions); err != nil {
		return build, append(issues, malformed(job, s.String()+".actions", err))
	}

	for i, rawAction := range actions {
		var af map[string]json.RawMessage
		if err := json.Unmarshal(rawAction, &af); err != nil {
			issues = append(issues, malformed(job, fmt.Sprintf("%s.actions[%d]", s, i), err))
			continue
		}
		field := func(key string) *float64 {
			v, err := numberField(af, key)
			if err != nil {
				issues = append(issues, malformed(job, fmt.Sprintf("%s.actions[%d].%s", s, i, key), err))
			}
			return v
		}
		build.Actions = append(build.Actions, models.Action{
			QueuingDurationMillis: field("queuingDurationMillis"),
			TotalDurationMillis:   field("totalDurationMillis"),
			SkipCount:             field("skipCount"),
			FailCount:             field("failCount"),
			TotalCount:            field("totalCount"),
		})
	}

	return build, issues
}

func numberField(fields map[string]json.RawMessage, key string) (*float64, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func malformed(job, field string, err error) error {
	return fmt.Errorf("%w: job %q field %s: %w", models.ErrMalformedPayload, job, field, err)
}
