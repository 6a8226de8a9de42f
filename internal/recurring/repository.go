package recurring

import "context"

type Repository interface {
	Create(ctx context.Context, rt *RecurringTask) error
	Get(ctx context.Context, id string) (*RecurringTask, error)
	List(ctx context.Context) ([]*RecurringTask, error)
	Update(ctx context.Context, rt *RecurringTask) error
	Delete(ctx context.Context, id string) error

	CreateRun(ctx context.Context, run *Run) error
	// ListRuns returns runs for a recurring task, most recent first.
	ListRuns(ctx context.Context, recurringID string, limit int) ([]*Run, error)
	DeleteRun(ctx context.Context, recurringID, runID string) error
	DeleteRunsByRecurring(ctx context.Context, recurringID string) error
}
