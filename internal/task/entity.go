package task

import (
	"fmt"
	"time"
)

// Status is the task lifecycle state. DONE is reachable only through the
// review approve action; see StateMachine.
type Status string

const (
	StatusInbox      Status = "INBOX"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusReview     Status = "REVIEW"
	StatusDone       Status = "DONE"
)

var allStatuses = []Status{StatusInbox, StatusAssigned, StatusInProgress, StatusReview, StatusDone}

func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Terminal reports whether the status ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusDone
}

type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityUrgent Priority = "URGENT"
)

func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityNormal, PriorityUrgent:
		return Priority(s), nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

type Task struct {
	ID          string    `yaml:"id" json:"id"`
	Title       string    `yaml:"title" json:"title"`
	Description string    `yaml:"description" json:"description"`
	Status      Status    `yaml:"status" json:"status"`
	Priority    Priority  `yaml:"priority" json:"priority"`
	Tags        []string  `yaml:"tags" json:"tags"`
	AssigneeID  string    `yaml:"assignee_id" json:"assignee_id"`
	Reviewer    string    `yaml:"reviewer" json:"reviewer"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
	// UpdatedAt is refreshed on every status-relevant mutation and is the
	// sole input to the monitor's time-in-status computation.
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}
