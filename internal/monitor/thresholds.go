package monitor

import (
	"time"

	"github.com/mdonan90/ClawController/internal/task"
)

// Per-status limits on how long a task may sit before it counts as stuck.
// Urgent tasks tighten every limit. DONE has no entry and is never flagged.
var (
	normalThresholds = map[task.Status]time.Duration{
		task.StatusInbox:      6 * time.Hour,
		task.StatusAssigned:   2 * time.Hour,
		task.StatusInProgress: 6 * time.Hour,
		task.StatusReview:     4 * time.Hour,
	}

	urgentThresholds = map[task.Status]time.Duration{
		task.StatusInbox:      2 * time.Hour,
		task.StatusAssigned:   1 * time.Hour,
		task.StatusInProgress: 2 * time.Hour,
		task.StatusReview:     1 * time.Hour,
	}
)

// Threshold returns the stuck limit for a priority/status pair. ok is false
// for statuses that are never flagged.
func Threshold(priority task.Priority, status task.Status) (time.Duration, bool) {
	thresholds := normalThresholds
	if priority == task.PriorityUrgent {
		thresholds = urgentThresholds
	}
	d, ok := thresholds[status]
	return d, ok
}
