package activity

import "context"

type Repository interface {
	Create(ctx context.Context, a *Activity) error
	// List returns activities for a task in creation order.
	List(ctx context.Context, taskID string, limit, offset int) ([]*Activity, int, error)
	// HasMessageFrom reports whether the agent has authored at least one
	// message (not an audit entry) on the task.
	HasMessageFrom(ctx context.Context, taskID, agentID string) (bool, error)
	// DeleteByTask removes all activities of a task (cascade on task delete).
	DeleteByTask(ctx context.Context, taskID string) error
}
