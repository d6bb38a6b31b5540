package logbook

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Range is a named half-open time span [From, Till).
type Range struct {
	Name string
	From time.Time
	Till time.Time
}

// NewRange creates a range named by its bounds.
func NewRange(from, till time.Time) Range {
	return Range{Name: formatBound(from) + ".." + formatBound(till), From: from, Till: till}
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.Till)
}

func formatBound(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04")
}

// GenerateRanges slices [from, till) into ranges. Without a schedule the
// result is the span itself. With a standard cron schedule (five fields or
// a descriptor like @monthly) it is one range per pair of consecutive
// occurrences strictly between from and till widened by one minute, the
// resolution of the schedule.
func GenerateRanges(from, till time.Time, schedule string) ([]Range, error) {
	if till.Before(from) {
		return nil, &RangeError{From: from, Till: till}
	}

	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return []Range{NewRange(from, till)}, nil
	}

	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, &ScheduleError{Schedule: schedule, Err: err}
	}

	var occurrences []time.Time
	end := till.Add(time.Minute)
	for t := sched.Next(from.Add(-time.Minute)); !t.IsZero() && t.Before(end); t = sched.Next(t) {
		occurrences = append(occurrences, t)
	}
	if len(occurrences) < 2 {
		return nil, &ScheduleError{Schedule: schedule, Occurrences: len(occurrences)}
	}

	ranges := make([]Range, 0, len(occurrences)-1)
	for i := 1; i < len(occurrences); i++ {
		ranges = append(ranges, NewRange(occurrences[i-1], occurrences[i]))
	}
	return ranges, nil
}
