package recurring

import (
	"time"

	"github.com/mdonan90/ClawController/internal/task"
)

// RecurringTask is a template that spawns tasks on a schedule.
type RecurringTask struct {
	ID          string        `yaml:"id" json:"id"`
	Title       string        `yaml:"title" json:"title"`
	Description string        `yaml:"description" json:"description"`
	Priority    task.Priority `yaml:"priority" json:"priority"`
	Tags        []string      `yaml:"tags,omitempty" json:"tags,omitempty"`
	AssigneeID  string        `yaml:"assignee_id,omitempty" json:"assignee_id,omitempty"`
	Schedule    Schedule      `yaml:"schedule" json:"schedule"`
	IsActive    bool          `yaml:"is_active" json:"is_active"`
	LastRunAt   *time.Time    `yaml:"last_run_at,omitempty" json:"last_run_at,omitempty"`
	NextRunAt   time.Time     `yaml:"next_run_at" json:"next_run_at"`
	RunCount    int           `yaml:"run_count" json:"run_count"`
	CreatedAt   time.Time     `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `yaml:"updated_at" json:"updated_at"`
}

// Run links one spawn of a recurring task to the task it created.
type Run struct {
	ID              string    `yaml:"id" json:"id"`
	RecurringTaskID string    `yaml:"recurring_task_id" json:"recurring_task_id"`
	TaskID          string    `yaml:"task_id" json:"task_id"`
	RunAt           time.Time `yaml:"run_at" json:"run_at"`
	Status          string    `yaml:"status" json:"status"`
}

const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)
