package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/mdonan90/ClawController/internal/activity"
	"github.com/mdonan90/ClawController/internal/agent"
	"github.com/mdonan90/ClawController/internal/autotransition"
	"github.com/mdonan90/ClawController/internal/eventbus"
	"github.com/mdonan90/ClawController/internal/notification"
	"github.com/mdonan90/ClawController/internal/task"
	"github.com/mdonan90/ClawController/pkg/cerr"
)

// ActorUser is recorded on transitions requested over the API without an
// explicit actor.
const ActorUser = "user"

type TaskServer struct {
	tasks      task.Repository
	activities activity.Repository
	agents     agent.Repository
	sm         *task.StateMachine
	engine     *autotransition.Engine
	bus        *eventbus.Bus
	notifier   notification.Notifier

	leadFallback string
	boardURL     string
}

func NewTaskServer(
	tasks task.Repository,
	activities activity.Repository,
	agents agent.Repository,
	sm *task.StateMachine,
	engine *autotransition.Engine,
	bus *eventbus.Bus,
	notifier notification.Notifier,
	leadFallback, boardURL string,
) *TaskServer {
	return &TaskServer{
		tasks:        tasks,
		activities:   activities,
		agents:       agents,
		sm:           sm,
		engine:       engine,
		bus:          bus,
		notifier:     notifier,
		leadFallback: leadFallback,
		boardURL:     boardURL,
	}
}

func (s *TaskServer) Routes(r chi.Router) {
	r.Get("/tasks", s.list)
	r.Post("/tasks", s.create)
	r.Get("/tasks/{taskID}", s.get)
	r.Patch("/tasks/{taskID}", s.update)
	r.Delete("/tasks/{taskID}", s.delete)
	r.Post("/tasks/{taskID}/review", s.review)
	r.Post("/tasks/{taskID}/complete", s.complete)
	r.Get("/tasks/{taskID}/activity", s.listActivity)
	r.Post("/tasks/{taskID}/activity", s.addActivity)
}

func (s *TaskServer) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := task.ListFilter{AssigneeID: r.URL.Query().Get("assignee_id")}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := task.ParseStatus(raw)
		if err != nil {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, err.Error(), nil)
			return
		}
		filter.Status = st
	}

	tasks, err := s.tasks.List(ctx, filter)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, tasks)
}

type createTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Tags        []string `json:"tags"`
	AssigneeID  string   `json:"assignee_id"`
}

func (s *TaskServer) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Title == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "title is required", nil)
		return
	}

	priority := task.PriorityNormal
	if req.Priority != "" {
		p, err := task.ParsePriority(req.Priority)
		if err != nil {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, err.Error(), nil)
			return
		}
		priority = p
	}

	now := time.Now()
	status := task.StatusInbox
	if req.AssigneeID != "" {
		status = task.StatusAssigned
	}
	t := &task.Task{
		ID:          ulid.Make().String(),
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
		Priority:    priority,
		Tags:        req.Tags,
		AssigneeID:  req.AssigneeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	s.bus.PublishNew(eventbus.TypeTaskCreated, t.ID, map[string]string{"title": t.Title})

	if t.AssigneeID != "" {
		msg := notification.TaskAssignedMessage(string(t.Status), t.Title, t.ID, t.Description, s.boardURL)
		if err := s.notifier.Notify(ctx, t.AssigneeID, msg); err != nil {
			slog.WarnContext(ctx, "failed to notify assignee", "task_id", t.ID, "error", err)
		}
	}

	cerr.SetJSONResponse(ctx, t)
}

func (s *TaskServer) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.tasks.Get(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, t)
}

type updateTaskRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Status      *string   `json:"status"`
	Priority    *string   `json:"priority"`
	Tags        *[]string `json:"tags"`
	AssigneeID  *string   `json:"assignee_id"`
	Actor       string    `json:"actor"`
}

func (s *TaskServer) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = ActorUser
	}

	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	changed := false
	if req.Title != nil {
		t.Title = *req.Title
		changed = true
	}
	if req.Description != nil {
		t.Description = *req.Description
		changed = true
	}
	if req.Priority != nil {
		p, err := task.ParsePriority(*req.Priority)
		if err != nil {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, err.Error(), nil)
			return
		}
		t.Priority = p
		changed = true
	}
	if req.Tags != nil {
		t.Tags = *req.Tags
		changed = true
	}
	if changed {
		t.UpdatedAt = time.Now()
		if err := s.tasks.Update(ctx, t); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		s.bus.PublishNew(eventbus.TypeTaskUpdated, t.ID, nil)
	}

	// Assignment and status changes go through the state machine so audit
	// records and guards apply.
	if req.AssigneeID != nil && *req.AssigneeID != "" {
		t, err = s.sm.Assign(ctx, taskID, *req.AssigneeID, actor)
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		msg := notification.TaskAssignedMessage(string(t.Status), t.Title, t.ID, t.Description, s.boardURL)
		if err := s.notifier.Notify(ctx, t.AssigneeID, msg); err != nil {
			slog.WarnContext(ctx, "failed to notify assignee", "task_id", t.ID, "error", err)
		}
	}
	if req.Status != nil {
		target, err := task.ParseStatus(*req.Status)
		if err != nil {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, err.Error(), nil)
			return
		}
		t, err = s.sm.Transition(ctx, taskID, target, actor)
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
	}

	cerr.SetJSONResponse(ctx, t)
}

func (s *TaskServer) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.activities.DeleteByTask(ctx, taskID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.tasks.Delete(ctx, taskID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	s.bus.PublishNew(eventbus.TypeTaskDeleted, taskID, nil)
	cerr.SetJSONResponse(ctx, ok)
}

type reviewRequest struct {
	Action   string `json:"action"`
	Feedback string `json:"feedback"`
	Reviewer string `json:"reviewer"`
	Actor    string `json:"actor"`
}

func (s *TaskServer) review(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = ActorUser
	}

	switch req.Action {
	case "send_to_review":
		reviewer := req.Reviewer
		if reviewer == "" {
			reviewer = s.defaultReviewer(ctx)
		}
		t, err := s.sm.SendToReview(ctx, taskID, reviewer, actor)
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		s.notifyReviewRequested(ctx, t, actor)
		cerr.SetJSONResponse(ctx, t)

	case "approve":
		t, err := s.sm.Approve(ctx, taskID, actor)
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		msg := notification.TaskCompletedMessage(t.Title, t.ID, t.AssigneeID, t.Description, s.boardURL)
		if err := s.notifier.Notify(ctx, s.leadFallback, msg); err != nil {
			slog.WarnContext(ctx, "failed to notify completion", "task_id", t.ID, "error", err)
		}
		cerr.SetJSONResponse(ctx, t)

	case "reject":
		t, err := s.sm.Reject(ctx, taskID, actor, req.Feedback)
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		if t.AssigneeID != "" {
			msg := notification.TaskRejectedMessage(t.Title, t.ID, actor, req.Feedback, s.boardURL)
			if err := s.notifier.Notify(ctx, t.AssigneeID, msg); err != nil {
				slog.WarnContext(ctx, "failed to notify rejection", "task_id", t.ID, "error", err)
			}
		}
		cerr.SetJSONResponse(ctx, t)

	default:
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "unknown review action: "+req.Action, nil)
	}
}

type completeRequest struct {
	Actor string `json:"actor"`
}

// complete is the explicit "I'm done" action: it sends the task to review
// with the default reviewer. DONE itself is only reachable via approve.
func (s *TaskServer) complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")
	var req completeRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
	}
	actor := req.Actor
	if actor == "" {
		actor = ActorUser
	}

	t, err := s.sm.SendToReview(ctx, taskID, s.defaultReviewer(ctx), actor)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	s.notifyReviewRequested(ctx, t, actor)
	cerr.SetJSONResponse(ctx, t)
}

func (s *TaskServer) notifyReviewRequested(ctx context.Context, t *task.Task, submittedBy string) {
	s.bus.PublishNew(eventbus.TypeTaskReviewRequested, t.ID, map[string]string{
		"reviewer":     t.Reviewer,
		"submitted_by": submittedBy,
	})
	msg := notification.ReviewRequestedMessage(t.Title, t.ID, submittedBy, t.Description, s.boardURL)
	if err := s.notifier.Notify(ctx, t.Reviewer, msg); err != nil {
		slog.WarnContext(ctx, "failed to notify reviewer", "task_id", t.ID, "reviewer", t.Reviewer, "error", err)
	}
}

func (s *TaskServer) defaultReviewer(ctx context.Context) string {
	lead, err := s.agents.FindLead(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to look up lead agent", "error", err)
	}
	if lead != nil {
		return lead.ID
	}
	return s.leadFallback
}

type activityListResponse struct {
	Activities []*activity.Activity `json:"activities"`
	Total      int                  `json:"total"`
}

func (s *TaskServer) listActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	limit, offset := 50, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := parsePositiveInt(raw); err == nil {
			limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := parsePositiveInt(raw); err == nil {
			offset = n
		}
	}

	activities, total, err := s.activities.List(ctx, taskID, limit, offset)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, activityListResponse{Activities: activities, Total: total})
}

type addActivityRequest struct {
	AgentID string `json:"agent_id"`
	Message string `json:"message"`
}

type addActivityResponse struct {
	Activity         *activity.Activity `json:"activity"`
	AutoTransitioned bool               `json:"auto_transitioned"`
	NewStatus        string             `json:"new_status,omitempty"`
}

func (s *TaskServer) addActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")
	var req addActivityRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Message == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "message is required", nil)
		return
	}

	result, err := s.engine.RecordActivity(ctx, taskID, req.AgentID, req.Message)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, addActivityResponse{
		Activity:         result.Activity,
		AutoTransitioned: result.AutoTransitioned,
		NewStatus:        string(result.NewStatus),
	})
}
