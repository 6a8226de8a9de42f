// Package autotransition derives task status changes from activity
// messages and agent liveness. All status changes go through the state
// machine's guarded transitions, so every trigger is safe to re-apply.
package autotransition

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mdonan90/ClawController/internal/activity"
	"github.com/mdonan90/ClawController/internal/agent"
	"github.com/mdonan90/ClawController/internal/eventbus"
	"github.com/mdonan90/ClawController/internal/liveness"
	"github.com/mdonan90/ClawController/internal/notification"
	"github.com/mdonan90/ClawController/internal/task"
)

// ActorAuto is recorded on transitions the engine applies itself.
const ActorAuto = "auto"

// completionKeywords mark a message as a completion report. Matched as
// case-insensitive substrings against the trimmed message.
var completionKeywords = []string{
	"completed",
	"done",
	"finished",
	"complete",
	"task complete",
	"marking done",
	"marking complete",
	"✅ done",
	"✅ complete",
	"ready for review",
	"awaiting review",
	"submitted for review",
}

func containsCompletionKeyword(message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, kw := range completionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type Config struct {
	// LeadAgentFallback is the reviewer of last resort when no lead agent
	// is registered.
	LeadAgentFallback string
	BoardURL          string
	PollInterval      time.Duration
	ActiveWindow      time.Duration
}

type Engine struct {
	tasks      task.Repository
	activities activity.Repository
	agents     agent.Repository
	sm         *task.StateMachine
	bus        *eventbus.Bus
	notifier   notification.Notifier
	liveness   liveness.Source
	cfg        Config

	now func() time.Time
}

func New(
	tasks task.Repository,
	activities activity.Repository,
	agents agent.Repository,
	sm *task.StateMachine,
	bus *eventbus.Bus,
	notifier notification.Notifier,
	livenessSource liveness.Source,
	cfg Config,
) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = 60 * time.Second
	}
	if cfg.LeadAgentFallback == "" {
		cfg.LeadAgentFallback = "main"
	}
	return &Engine{
		tasks:      tasks,
		activities: activities,
		agents:     agents,
		sm:         sm,
		bus:        bus,
		notifier:   notifier,
		liveness:   livenessSource,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Result reports what RecordActivity did beyond storing the message.
type Result struct {
	Activity *activity.Activity
	// AutoTransitioned is set when a trigger moved the task, with the
	// status the task ended up in.
	AutoTransitioned bool
	NewStatus        task.Status
}

// RecordActivity stores an activity message and runs the activity-based
// triggers: first message from the assignee starts the task, a completion
// keyword sends it to review.
func (e *Engine) RecordActivity(ctx context.Context, taskID, agentID, message string) (*Result, error) {
	t, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	// Evaluated before the new message is stored, so the message being
	// recorded is itself the candidate first activity.
	firstFromAuthor := false
	if t.Status == task.StatusAssigned && agentID != "" && agentID == t.AssigneeID {
		has, err := e.activities.HasMessageFrom(ctx, taskID, agentID)
		if err != nil {
			return nil, err
		}
		firstFromAuthor = !has
	}

	act := &activity.Activity{
		ID:        ulid.Make().String(),
		TaskID:    taskID,
		AgentID:   agentID,
		Type:      activity.TypeMessage,
		Message:   message,
		CreatedAt: e.now(),
	}
	if err := e.activities.Create(ctx, act); err != nil {
		return nil, err
	}
	e.bus.PublishNew(eventbus.TypeTaskActivityAdded, taskID, map[string]string{"agent_id": agentID})

	result := &Result{Activity: act}

	if firstFromAuthor {
		updated, applied, err := e.sm.TryTransition(ctx, taskID, task.StatusAssigned, task.StatusInProgress, ActorAuto)
		if err != nil {
			return nil, err
		}
		if applied {
			slog.InfoContext(ctx, "auto-transition: first activity", "task_id", taskID, "agent_id", agentID)
			result.AutoTransitioned = true
			result.NewStatus = updated.Status
			t = updated
		}
	}

	if t.Status == task.StatusInProgress && containsCompletionKeyword(message) {
		updated, applied, err := e.completeToReview(ctx, t, agentID)
		if err != nil {
			return nil, err
		}
		if applied {
			result.AutoTransitioned = true
			result.NewStatus = updated.Status
		}
	}

	return result, nil
}

// completeToReview moves an in-progress task to review, filling in the
// default reviewer when none is set, and notifies the reviewer.
func (e *Engine) completeToReview(ctx context.Context, t *task.Task, submittedBy string) (*task.Task, bool, error) {
	reviewer := t.Reviewer
	if reviewer == "" {
		reviewer = e.defaultReviewer(ctx)
	}

	updated, applied, err := e.sm.TrySendToReview(ctx, t.ID, task.StatusInProgress, reviewer, ActorAuto)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		return updated, false, nil
	}

	slog.InfoContext(ctx, "auto-transition: completion keyword", "task_id", t.ID, "reviewer", reviewer)
	e.bus.PublishNew(eventbus.TypeTaskReviewRequested, t.ID, map[string]string{
		"reviewer":     reviewer,
		"submitted_by": submittedBy,
	})

	msg := notification.ReviewRequestedMessage(updated.Title, updated.ID, submittedBy, updated.Description, e.cfg.BoardURL)
	if err := e.notifier.Notify(ctx, reviewer, msg); err != nil {
		slog.WarnContext(ctx, "auto-transition: failed to notify reviewer", "task_id", t.ID, "reviewer", reviewer, "error", err)
	}

	return updated, true, nil
}

func (e *Engine) defaultReviewer(ctx context.Context) string {
	lead, err := e.agents.FindLead(ctx)
	if err != nil {
		slog.WarnContext(ctx, "auto-transition: failed to look up lead agent", "error", err)
	}
	if lead != nil {
		return lead.ID
	}
	return e.cfg.LeadAgentFallback
}

// Run polls agent liveness and starts assigned tasks whose assignee is
// active. It blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "auto-transition: liveness poll started",
		"interval", e.cfg.PollInterval, "window", e.cfg.ActiveWindow)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "auto-transition: liveness poll stopped")
			return
		case <-ticker.C:
			if err := e.pollOnce(ctx); err != nil {
				slog.WarnContext(ctx, "auto-transition: liveness poll failed", "error", err)
			}
		}
	}
}

func (e *Engine) pollOnce(ctx context.Context) error {
	active, err := e.liveness.ActiveAgents(ctx, e.cfg.ActiveWindow)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return nil
	}
	activeSet := make(map[string]bool, len(active))
	for _, id := range active {
		activeSet[id] = true
	}

	assigned, err := e.tasks.List(ctx, task.ListFilter{Status: task.StatusAssigned})
	if err != nil {
		return err
	}
	for _, t := range assigned {
		if !activeSet[t.AssigneeID] {
			continue
		}
		_, applied, err := e.sm.TryTransition(ctx, t.ID, task.StatusAssigned, task.StatusInProgress, ActorAuto)
		if err != nil {
			slog.WarnContext(ctx, "auto-transition: liveness trigger failed", "task_id", t.ID, "error", err)
			continue
		}
		if applied {
			slog.InfoContext(ctx, "auto-transition: liveness trigger", "task_id", t.ID, "agent_id", t.AssigneeID)
		}
	}
	return nil
}
