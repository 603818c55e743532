package models

import (
	"fmt"
	"strings"
	"unicode"
)

// Status is one of the build pointers Jenkins keeps per job.
type Status int

const (
	StatusLastBuild Status = iota
	StatusLastCompletedBuild
	StatusLastFailedBuild
	StatusLastStableBuild
	StatusLastSuccessfulBuild
	StatusLastUnstableBuild
	StatusLastUnsuccessfulBuild

	NumStatuses = int(StatusLastUnsuccessfulBuild) + 1
)

var Statuses = []Status{
	StatusLastBuild,
	StatusLastCompletedBuild,
	StatusLastFailedBuild,
	StatusLastStableBuild,
	StatusLastSuccessfulBuild,
	StatusLastUnstableBuild,
	StatusLastUnsuccessfulBuild,
}

// String returns the key used by the Jenkins JSON API.
func (s Status) String() string {
	switch s {
	case StatusLastBuild:
		return "lastBuild"
	case StatusLastCompletedBuild:
		return "lastCompletedBuild"
	case StatusLastFailedBuild:
		return "lastFailedBuild"
	case StatusLastStableBuild:
		return "lastStableBuild"
	case StatusLastSuccessfulBuild:
		return "lastSuccessfulBuild"
	case StatusLastUnstableBuild:
		return "lastUnstableBuild"
	case StatusLastUnsuccessfulBuild:
		return "lastUnsuccessfulBuild"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// SnakeCase returns the status key as used in metric names, e.g. last_build.
func (s Status) SnakeCase() string {
	key := s.String()
	var b strings.Builder
	b.Grow(len(key) + 4)
	for _, r := range key {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func ParseStatus(key string) (Status, bool) {
	for _, s := range Statuses {
		if s.String() == key {
			return s, true
		}
	}
	return 0, false
}

// Action carries the counters Jenkins attaches to a build through its
// actions array. Nil means the field was absent.
type Action struct {
	QueuingDurationMillis *float64
	TotalDurationMillis   *float64
	SkipCount             *float64
	FailCount             *float64
	TotalCount            *float64
}

type Build struct {
	Number    *float64
	Duration  *float64
	Timestamp *float64
	Actions   []Action
}

// Job is the status record for one monitored job. A status present in Builds
// with a nil value was reported by the API as null.
type Job struct {
	Name   string
	Builds map[Status]*Build
	// Issues lists fields that were dropped because they had an unexpected shape.
	Issues []error
}
