package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mdonan90/ClawController/internal/activity"
	"github.com/mdonan90/ClawController/internal/eventbus"
	"github.com/mdonan90/ClawController/pkg/cerr"
)

// StateMachine is the single authority for task status changes. Every
// applied transition refreshes UpdatedAt, appends a status-change audit
// activity, and publishes a status-changed event. Transitions are serialized
// per task id and the precondition is re-checked against a fresh read inside
// the lock, so concurrent triggers cannot double-apply.
type StateMachine struct {
	repo         Repository
	activityRepo activity.Repository
	bus          *eventbus.Bus

	locks keyedMutex
	now   func() time.Time
}

func NewStateMachine(repo Repository, activityRepo activity.Repository, bus *eventbus.Bus) *StateMachine {
	return &StateMachine{
		repo:         repo,
		activityRepo: activityRepo,
		bus:          bus,
		now:          time.Now,
	}
}

// Transition applies a manual status change requested by actor.
// DONE and the REVIEW→IN_PROGRESS rejection path are reserved for the
// review actions and are refused here.
func (m *StateMachine) Transition(ctx context.Context, taskID string, target Status, actor string) (*Task, error) {
	if target == StatusDone {
		return nil, cerr.NewError(cerr.FailedPrecondition,
			"tasks are completed by approving them in review; use the review action", nil)
	}

	unlock := m.locks.lock(taskID)
	defer unlock()

	t, err := m.repo.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status == target {
		return t, nil
	}
	if err := m.validateManual(t, target); err != nil {
		return nil, err
	}
	if err := m.apply(ctx, t, target, actor); err != nil {
		return nil, err
	}
	return t, nil
}

func (m *StateMachine) validateManual(t *Task, target Status) error {
	// Reassignment may pull a task back to ASSIGNED from any state.
	if target == StatusAssigned {
		if t.AssigneeID == "" {
			return cerr.NewError(cerr.FailedPrecondition, "cannot move to ASSIGNED without an assignee", nil)
		}
		return nil
	}
	switch {
	case t.Status == StatusAssigned && target == StatusInProgress:
		return nil
	case t.Status == StatusInProgress && target == StatusReview:
		return nil
	case t.Status == StatusReview && target == StatusInProgress:
		return cerr.NewError(cerr.FailedPrecondition,
			"tasks in review are sent back by rejecting them with feedback; use the review action", nil)
	}
	return cerr.NewError(cerr.FailedPrecondition,
		fmt.Sprintf("transition from %s to %s is not allowed", t.Status, target), nil)
}

// TryTransition applies from→to only if the task is still in from at apply
// time. A stale precondition is a no-op, not an error: a concurrent trigger
// has already applied the same or a superseding transition.
func (m *StateMachine) TryTransition(ctx context.Context, taskID string, from, to Status, actor string) (*Task, bool, error) {
	unlock := m.locks.lock(taskID)
	defer unlock()

	t, err := m.repo.Get(ctx, taskID)
	if err != nil {
		return nil, false, err
	}
	if t.Status != from {
		return t, false, nil
	}
	if err := m.apply(ctx, t, to, actor); err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// TrySendToReview is the trigger-safe variant of SendToReview: it applies
// only if the task is still in from at apply time, and sets the reviewer in
// the same guarded write so a concurrent assignment cannot clobber it.
func (m *StateMachine) TrySendToReview(ctx context.Context, taskID string, from Status, reviewer, actor string) (*Task, bool, error) {
	unlock := m.locks.lock(taskID)
	defer unlock()

	t, err := m.repo.Get(ctx, taskID)
	if err != nil {
		return nil, false, err
	}
	if t.Status != from {
		return t, false, nil
	}
	t.Reviewer = reviewer
	if err := m.apply(ctx, t, StatusReview, actor); err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// Approve completes a review, moving the task to DONE. The only path to DONE.
func (m *StateMachine) Approve(ctx context.Context, taskID, actor string) (*Task, error) {
	unlock := m.locks.lock(taskID)
	defer unlock()

	t, err := m.repo.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusReview {
		return nil, cerr.NewError(cerr.FailedPrecondition, "task is not in REVIEW status", nil)
	}
	t.Reviewer = ""
	if err := m.apply(ctx, t, StatusDone, actor); err != nil {
		return nil, err
	}
	return t, nil
}

// Reject sends a reviewed task back to IN_PROGRESS. Feedback is required and
// recorded as a message from the actor so the assignee sees why.
func (m *StateMachine) Reject(ctx context.Context, taskID, actor, feedback string) (*Task, error) {
	if feedback == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "rejection requires feedback", nil)
	}

	unlock := m.locks.lock(taskID)
	defer unlock()

	t, err := m.repo.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusReview {
		return nil, cerr.NewError(cerr.FailedPrecondition, "task is not in REVIEW status", nil)
	}
	t.Reviewer = ""
	if err := m.apply(ctx, t, StatusInProgress, actor); err != nil {
		return nil, err
	}
	_ = m.activityRepo.Create(ctx, &activity.Activity{
		ID:        ulid.Make().String(),
		TaskID:    t.ID,
		AgentID:   actor,
		Type:      activity.TypeMessage,
		Message:   "Review feedback: " + feedback,
		CreatedAt: m.now(),
	})
	return t, nil
}

// SendToReview moves a task to REVIEW with the given reviewer, from any
// non-terminal state. Used by the explicit complete action.
func (m *StateMachine) SendToReview(ctx context.Context, taskID, reviewer, actor string) (*Task, error) {
	unlock := m.locks.lock(taskID)
	defer unlock()

	t, err := m.repo.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusDone {
		return nil, cerr.NewError(cerr.FailedPrecondition, "task is already done", nil)
	}
	if t.Status == StatusReview {
		return nil, cerr.NewError(cerr.FailedPrecondition, "task is already in review", nil)
	}
	t.Reviewer = reviewer
	if err := m.apply(ctx, t, StatusReview, actor); err != nil {
		return nil, err
	}
	return t, nil
}

// Assign sets the assignee. Assigning a task sitting in INBOX advances it to
// ASSIGNED as a side effect of the same write, not a separate transition.
func (m *StateMachine) Assign(ctx context.Context, taskID, agentID, actor string) (*Task, error) {
	if agentID == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "assignee is required", nil)
	}

	unlock := m.locks.lock(taskID)
	defer unlock()

	t, err := m.repo.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	t.AssigneeID = agentID
	if t.Status == StatusInbox {
		if err := m.apply(ctx, t, StatusAssigned, actor); err != nil {
			return nil, err
		}
		return t, nil
	}
	t.UpdatedAt = m.now()
	if err := m.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	m.bus.PublishNew(eventbus.TypeTaskUpdated, t.ID, map[string]string{"assignee_id": agentID})
	return t, nil
}

// apply mutates the status, persists, audits and publishes. Callers hold the
// per-task lock and have validated the transition.
func (m *StateMachine) apply(ctx context.Context, t *Task, target Status, actor string) error {
	old := t.Status
	t.Status = target
	t.UpdatedAt = m.now()
	if err := m.repo.Update(ctx, t); err != nil {
		return err
	}

	// The audit record is the monitor's clock; write it for every applied
	// transition, manual or automatic.
	_ = m.activityRepo.Create(ctx, &activity.Activity{
		ID:        ulid.Make().String(),
		TaskID:    t.ID,
		AgentID:   actor,
		Type:      activity.TypeStatusChange,
		Message:   fmt.Sprintf("Status: %s → %s", old, target),
		CreatedAt: t.UpdatedAt,
	})

	m.bus.PublishNew(eventbus.TypeTaskStatusChanged, t.ID, map[string]string{
		"old_status": string(old),
		"new_status": string(target),
		"actor":      actor,
	})
	return nil
}

// keyedMutex serializes operations per task id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(id string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
