package pushnotification

import (
	"context"
	"log/slog"

	"github.com/mdonan90/ClawController/internal/eventbus"
	"github.com/mdonan90/ClawController/internal/task"
)

// Dispatcher forwards review requests and stuck-task alerts from the event
// bus to push subscribers.
type Dispatcher struct {
	eventBus *eventbus.Bus
	taskRepo task.Repository
	sender   *Sender
}

func NewDispatcher(eventBus *eventbus.Bus, taskRepo task.Repository, sender *Sender) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		taskRepo: taskRepo,
		sender:   sender,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.InfoContext(ctx, "push dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "push dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			switch event.Type {
			case eventbus.TypeTaskReviewRequested:
				d.handleTaskEvent(ctx, event, "Task Ready for Review")
			case eventbus.TypeTaskStuck:
				d.handleTaskEvent(ctx, event, "Stuck Task Alert")
			}
		}
	}
}

func (d *Dispatcher) handleTaskEvent(ctx context.Context, event *eventbus.Event, title string) {
	t, err := d.taskRepo.Get(ctx, event.ResourceID)
	if err != nil {
		slog.ErrorContext(ctx, "push dispatcher: failed to get task", "id", event.ResourceID, "error", err)
		return
	}

	d.sender.SendToAll(ctx, &NotificationPayload{
		Title: title,
		Body:  t.Title,
		URL:   "/tasks/" + t.ID,
		Tag:   event.ID,
	})
}
