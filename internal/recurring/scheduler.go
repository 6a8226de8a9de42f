package recurring

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mdonan90/ClawController/internal/activity"
	"github.com/mdonan90/ClawController/internal/eventbus"
	"github.com/mdonan90/ClawController/internal/notification"
	"github.com/mdonan90/ClawController/internal/task"
	"github.com/mdonan90/ClawController/pkg/cerr"
)

type SchedulerConfig struct {
	Tick     time.Duration
	BoardURL string
}

// Scheduler owns the recurring-task lifecycle: it spawns tasks when
// schedules come due and performs the destructive pause/delete cascades.
type Scheduler struct {
	repo       Repository
	tasks      task.Repository
	activities activity.Repository
	bus        *eventbus.Bus
	notifier   notification.Notifier
	cfg        SchedulerConfig

	now func() time.Time
}

func NewScheduler(repo Repository, tasks task.Repository, activities activity.Repository, bus *eventbus.Bus, notifier notification.Notifier, cfg SchedulerConfig) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	return &Scheduler{
		repo:       repo,
		tasks:      tasks,
		activities: activities,
		bus:        bus,
		notifier:   notifier,
		cfg:        cfg,
		now:        time.Now,
	}
}

// CreateInput carries the template and schedule for a new recurring task.
type CreateInput struct {
	Title       string
	Description string
	Priority    task.Priority
	Tags        []string
	AssigneeID  string
	Schedule    Schedule
}

func (s *Scheduler) Create(ctx context.Context, in CreateInput) (*RecurringTask, error) {
	if in.Title == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "title is required", nil)
	}
	if err := in.Schedule.Validate(); err != nil {
		return nil, err
	}
	if in.Priority == "" {
		in.Priority = task.PriorityNormal
	}

	now := s.now()
	rt := &RecurringTask{
		ID:          ulid.Make().String(),
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		Tags:        in.Tags,
		AssigneeID:  in.AssigneeID,
		Schedule:    in.Schedule,
		IsActive:    true,
		NextRunAt:   in.Schedule.NextRun(now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, rt); err != nil {
		return nil, err
	}
	s.bus.PublishNew(eventbus.TypeRecurringCreated, rt.ID, map[string]string{"title": rt.Title})
	slog.InfoContext(ctx, "recurring: created", "id", rt.ID, "title", rt.Title, "next_run", rt.NextRunAt)
	return rt, nil
}

// UpdateInput patches a recurring task. Nil fields are left unchanged.
type UpdateInput struct {
	Title        *string
	Description  *string
	Priority     *task.Priority
	Tags         *[]string
	AssigneeID   *string
	ScheduleType *ScheduleType
	ScheduleVal  *string
	ScheduleTime *string
	IsActive     *bool
}

// Update applies the patch. Setting IsActive to false cascades: every
// spawned task not yet done is deleted along with its run record. Changing
// any schedule field recomputes the next run.
func (s *Scheduler) Update(ctx context.Context, id string, in UpdateInput) (*RecurringTask, error) {
	rt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		rt.Title = *in.Title
	}
	if in.Description != nil {
		rt.Description = *in.Description
	}
	if in.Priority != nil {
		rt.Priority = *in.Priority
	}
	if in.Tags != nil {
		rt.Tags = *in.Tags
	}
	if in.AssigneeID != nil {
		rt.AssigneeID = *in.AssigneeID
	}

	scheduleChanged := false
	if in.ScheduleType != nil {
		rt.Schedule.Type = *in.ScheduleType
		scheduleChanged = true
	}
	if in.ScheduleVal != nil {
		rt.Schedule.Value = *in.ScheduleVal
		scheduleChanged = true
	}
	if in.ScheduleTime != nil {
		rt.Schedule.Time = *in.ScheduleTime
		scheduleChanged = true
	}
	if scheduleChanged {
		if err := rt.Schedule.Validate(); err != nil {
			return nil, err
		}
		rt.NextRunAt = rt.Schedule.NextRun(s.now())
	}

	if in.IsActive != nil {
		rt.IsActive = *in.IsActive
		if !rt.IsActive {
			if err := s.deleteSpawnedTasks(ctx, id, false); err != nil {
				return nil, err
			}
		}
	}

	rt.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, rt); err != nil {
		return nil, err
	}
	s.bus.PublishNew(eventbus.TypeRecurringUpdated, rt.ID, nil)
	return rt, nil
}

// Delete removes the recurring task, every spawned task not yet done, and
// the full run history.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.deleteSpawnedTasks(ctx, id, true); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.bus.PublishNew(eventbus.TypeRecurringDeleted, id, nil)
	slog.InfoContext(ctx, "recurring: deleted", "id", id)
	return nil
}

// deleteSpawnedTasks removes spawned tasks that are not in a terminal
// state, together with their activities. Run records go too: all of them
// when dropAllRuns is set (delete), otherwise only the runs whose task was
// removed (pause keeps the history of completed runs).
func (s *Scheduler) deleteSpawnedTasks(ctx context.Context, recurringID string, dropAllRuns bool) error {
	runs, err := s.repo.ListRuns(ctx, recurringID, 0)
	if err != nil {
		return err
	}

	for _, run := range runs {
		if run.TaskID == "" {
			continue
		}
		t, err := s.tasks.Get(ctx, run.TaskID)
		if err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				continue
			}
			return err
		}
		if t.Status.Terminal() {
			continue
		}
		if err := s.activities.DeleteByTask(ctx, t.ID); err != nil {
			return err
		}
		if err := s.tasks.Delete(ctx, t.ID); err != nil {
			return err
		}
		s.bus.PublishNew(eventbus.TypeTaskDeleted, t.ID, nil)
		if !dropAllRuns {
			if err := s.repo.DeleteRun(ctx, recurringID, run.ID); err != nil {
				return err
			}
		}
	}

	if dropAllRuns {
		return s.repo.DeleteRunsByRecurring(ctx, recurringID)
	}
	return nil
}

// Trigger spawns a task from the template immediately and advances the
// schedule. Also used by the ticker when a schedule comes due.
func (s *Scheduler) Trigger(ctx context.Context, id string) (*task.Task, *Run, error) {
	rt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	status := task.StatusInbox
	if rt.AssigneeID != "" {
		status = task.StatusAssigned
	}
	t := &task.Task{
		ID:          ulid.Make().String(),
		Title:       rt.Title,
		Description: rt.Description,
		Status:      status,
		Priority:    rt.Priority,
		Tags:        rt.Tags,
		AssigneeID:  rt.AssigneeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, nil, err
	}

	run := &Run{
		ID:              ulid.Make().String(),
		RecurringTaskID: rt.ID,
		TaskID:          t.ID,
		RunAt:           now,
		Status:          RunStatusSuccess,
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, nil, err
	}

	rt.LastRunAt = &now
	rt.RunCount++
	rt.NextRunAt = rt.Schedule.NextRun(now)
	rt.UpdatedAt = now
	if err := s.repo.Update(ctx, rt); err != nil {
		return nil, nil, err
	}

	s.bus.PublishNew(eventbus.TypeTaskCreated, t.ID, map[string]string{"title": t.Title})
	s.bus.PublishNew(eventbus.TypeRecurringRun, rt.ID, map[string]string{"task_id": t.ID})

	if t.AssigneeID != "" {
		msg := notification.TaskAssignedMessage(string(t.Status), t.Title, t.ID, t.Description, s.cfg.BoardURL)
		if err := s.notifier.Notify(ctx, t.AssigneeID, msg); err != nil {
			slog.WarnContext(ctx, "recurring: failed to notify assignee", "task_id", t.ID, "error", err)
		}
	}

	slog.InfoContext(ctx, "recurring: triggered", "id", rt.ID, "task_id", t.ID, "next_run", rt.NextRunAt)
	return t, run, nil
}

// Run fires due schedules on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	slog.InfoContext(ctx, "recurring: scheduler started", "tick", s.cfg.Tick)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "recurring: scheduler stopped")
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context) {
	all, err := s.repo.List(ctx)
	if err != nil {
		slog.WarnContext(ctx, "recurring: failed to list for scheduling", "error", err)
		return
	}
	now := s.now()
	for _, rt := range all {
		if !rt.IsActive || rt.NextRunAt.After(now) {
			continue
		}
		if _, _, err := s.Trigger(ctx, rt.ID); err != nil {
			slog.WarnContext(ctx, "recurring: trigger failed", "id", rt.ID, "error", err)
		}
	}
}
