package recurring

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mdonan90/ClawController/pkg/cerr"
)

type ScheduleType string

const (
	ScheduleDaily  ScheduleType = "daily"
	ScheduleWeekly ScheduleType = "weekly"
	ScheduleHourly ScheduleType = "hourly"
	// ScheduleCron is accepted but not interpreted; the next run falls
	// back to 24 hours out. TODO: parse cron expressions once a scheduler
	// backend that understands them is wired in.
	ScheduleCron ScheduleType = "cron"
)

// Schedule describes when a recurring task fires.
//
// Value depends on Type: weekly uses comma-separated weekday numbers
// (0=Mon .. 6=Sun), hourly uses an interval in hours, cron holds the raw
// expression, daily ignores it. Time is "HH:MM" for daily and weekly.
type Schedule struct {
	Type  ScheduleType `yaml:"type" json:"type"`
	Value string       `yaml:"value,omitempty" json:"value,omitempty"`
	Time  string       `yaml:"time,omitempty" json:"time,omitempty"`
}

func (s Schedule) Validate() error {
	switch s.Type {
	case ScheduleDaily, ScheduleCron:
	case ScheduleWeekly:
		if s.Value != "" {
			if _, err := parseWeekdays(s.Value); err != nil {
				return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid weekly schedule: %v", err), nil)
			}
		}
	case ScheduleHourly:
		if s.Value != "" {
			if _, err := strconv.Atoi(s.Value); err != nil {
				return cerr.NewError(cerr.InvalidArgument, "hourly schedule value must be a whole number of hours", nil)
			}
		}
	default:
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown schedule type %q", s.Type), nil)
	}
	if s.Time != "" {
		if _, _, err := parseClock(s.Time); err != nil {
			return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid schedule time: %v", err), nil)
		}
	}
	return nil
}

// NextRun computes the next fire time after now. The result is always
// strictly in the future.
func (s Schedule) NextRun(now time.Time) time.Time {
	switch s.Type {
	case ScheduleDaily:
		if s.Time == "" {
			return now.Add(24 * time.Hour)
		}
		hour, minute, err := parseClock(s.Time)
		if err != nil {
			return now.Add(24 * time.Hour)
		}
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next

	case ScheduleWeekly:
		if s.Value == "" || s.Time == "" {
			return now.AddDate(0, 0, 7)
		}
		days, err := parseWeekdays(s.Value)
		if err != nil {
			return now.AddDate(0, 0, 7)
		}
		hour, minute, err := parseClock(s.Time)
		if err != nil {
			return now.AddDate(0, 0, 7)
		}
		for i := 0; i < 7; i++ {
			candidate := now.AddDate(0, 0, i)
			if !days[mondayIndexed(candidate.Weekday())] {
				continue
			}
			next := time.Date(candidate.Year(), candidate.Month(), candidate.Day(), hour, minute, 0, 0, now.Location())
			if next.After(now) {
				return next
			}
		}
		return now.AddDate(0, 0, 7)

	case ScheduleHourly:
		hours := 1
		if s.Value != "" {
			if n, err := strconv.Atoi(s.Value); err == nil && n > 0 {
				hours = n
			}
		}
		return now.Add(time.Duration(hours) * time.Hour)

	case ScheduleCron:
		slog.Warn("cron schedules are not interpreted, deferring next run by a day", "expr", s.Value)
		return now.Add(24 * time.Hour)
	}

	return now.Add(24 * time.Hour)
}

// Human renders the schedule for display, e.g. "Every day at 09:00".
func (s Schedule) Human() string {
	switch s.Type {
	case ScheduleDaily:
		t := s.Time
		if t == "" {
			t = "00:00"
		}
		return "Every day at " + t

	case ScheduleWeekly:
		if s.Value == "" {
			return "Weekly"
		}
		days, err := parseWeekdays(s.Value)
		if err != nil {
			return "Weekly"
		}
		names := []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
		var picked []string
		for i, name := range names {
			if days[i] {
				picked = append(picked, name)
			}
		}
		t := s.Time
		if t == "" {
			t = "00:00"
		}
		return fmt.Sprintf("Weekly on %s at %s", strings.Join(picked, ", "), t)

	case ScheduleHourly:
		hours := 1
		if s.Value != "" {
			if n, err := strconv.Atoi(s.Value); err == nil && n > 0 {
				hours = n
			}
		}
		if hours == 1 {
			return "Every hour"
		}
		return fmt.Sprintf("Every %d hours", hours)

	case ScheduleCron:
		return "Cron: " + s.Value
	}
	return string(s.Type)
}

// parseWeekdays parses "0,2,4" into a Monday-indexed presence array.
func parseWeekdays(value string) ([7]bool, error) {
	var days [7]bool
	for _, part := range strings.Split(value, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return days, fmt.Errorf("weekday %q is not a number", part)
		}
		if n < 0 || n > 6 {
			return days, fmt.Errorf("weekday %d out of range 0-6", n)
		}
		days[n] = true
	}
	return days, nil
}

func parseClock(value string) (hour, minute int, err error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time %q is not HH:MM", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("hour %q out of range", parts[0])
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute %q out of range", parts[1])
	}
	return hour, minute, nil
}

// mondayIndexed converts time.Weekday (Sunday=0) to the schedule's
// Monday=0 numbering.
func mondayIndexed(d time.Weekday) int {
	return (int(d) + 6) % 7
}
