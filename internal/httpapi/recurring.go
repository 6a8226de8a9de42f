package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mdonan90/ClawController/internal/recurring"
	"github.com/mdonan90/ClawController/internal/task"
	"github.com/mdonan90/ClawController/pkg/cerr"
)

type RecurringServer struct {
	repo      recurring.Repository
	tasks     task.Repository
	scheduler *recurring.Scheduler
}

func NewRecurringServer(repo recurring.Repository, tasks task.Repository, scheduler *recurring.Scheduler) *RecurringServer {
	return &RecurringServer{repo: repo, tasks: tasks, scheduler: scheduler}
}

func (s *RecurringServer) Routes(r chi.Router) {
	r.Get("/recurring", s.list)
	r.Post("/recurring", s.create)
	r.Get("/recurring/{recurringID}", s.get)
	r.Patch("/recurring/{recurringID}", s.update)
	r.Delete("/recurring/{recurringID}", s.delete)
	r.Get("/recurring/{recurringID}/runs", s.runs)
	r.Post("/recurring/{recurringID}/trigger", s.trigger)
}

type recurringResponse struct {
	*recurring.RecurringTask
	ScheduleHuman string `json:"schedule_human"`
}

func withHuman(rt *recurring.RecurringTask) recurringResponse {
	return recurringResponse{RecurringTask: rt, ScheduleHuman: rt.Schedule.Human()}
}

func (s *RecurringServer) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all, err := s.repo.List(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	out := make([]recurringResponse, len(all))
	for i, rt := range all {
		out[i] = withHuman(rt)
	}
	cerr.SetJSONResponse(ctx, out)
}

type createRecurringRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Priority     string   `json:"priority"`
	Tags         []string `json:"tags"`
	AssigneeID   string   `json:"assignee_id"`
	ScheduleType string   `json:"schedule_type"`
	ScheduleVal  string   `json:"schedule_value"`
	ScheduleTime string   `json:"schedule_time"`
}

func (s *RecurringServer) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createRecurringRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	var priority task.Priority
	if req.Priority != "" {
		p, err := task.ParsePriority(req.Priority)
		if err != nil {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, err.Error(), nil)
			return
		}
		priority = p
	}

	rt, err := s.scheduler.Create(ctx, recurring.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    priority,
		Tags:        req.Tags,
		AssigneeID:  req.AssigneeID,
		Schedule: recurring.Schedule{
			Type:  recurring.ScheduleType(req.ScheduleType),
			Value: req.ScheduleVal,
			Time:  req.ScheduleTime,
		},
	})
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, withHuman(rt))
}

func (s *RecurringServer) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rt, err := s.repo.Get(ctx, chi.URLParam(r, "recurringID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, withHuman(rt))
}

type updateRecurringRequest struct {
	Title        *string   `json:"title"`
	Description  *string   `json:"description"`
	Priority     *string   `json:"priority"`
	Tags         *[]string `json:"tags"`
	AssigneeID   *string   `json:"assignee_id"`
	ScheduleType *string   `json:"schedule_type"`
	ScheduleVal  *string   `json:"schedule_value"`
	ScheduleTime *string   `json:"schedule_time"`
	IsActive     *bool     `json:"is_active"`
}

func (s *RecurringServer) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateRecurringRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	in := recurring.UpdateInput{
		Title:        req.Title,
		Description:  req.Description,
		Tags:         req.Tags,
		AssigneeID:   req.AssigneeID,
		ScheduleVal:  req.ScheduleVal,
		ScheduleTime: req.ScheduleTime,
		IsActive:     req.IsActive,
	}
	if req.Priority != nil {
		p, err := task.ParsePriority(*req.Priority)
		if err != nil {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, err.Error(), nil)
			return
		}
		in.Priority = &p
	}
	if req.ScheduleType != nil {
		st := recurring.ScheduleType(*req.ScheduleType)
		in.ScheduleType = &st
	}

	rt, err := s.scheduler.Update(ctx, chi.URLParam(r, "recurringID"), in)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, withHuman(rt))
}

func (s *RecurringServer) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.scheduler.Delete(ctx, chi.URLParam(r, "recurringID")); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, ok)
}

type runResponse struct {
	*recurring.Run
	Task *task.Task `json:"task,omitempty"`
}

func (s *RecurringServer) runs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recurringID := chi.URLParam(r, "recurringID")
	if _, err := s.repo.Get(ctx, recurringID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := parsePositiveInt(raw); err == nil {
			limit = n
		}
	}

	runs, err := s.repo.ListRuns(ctx, recurringID, limit)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	out := make([]runResponse, len(runs))
	for i, run := range runs {
		out[i] = runResponse{Run: run}
		if run.TaskID != "" {
			if t, err := s.tasks.Get(ctx, run.TaskID); err == nil {
				out[i].Task = t
			}
		}
	}
	cerr.SetJSONResponse(ctx, out)
}

type triggerResponse struct {
	OK     bool   `json:"ok"`
	TaskID string `json:"task_id"`
	RunID  string `json:"run_id"`
}

func (s *RecurringServer) trigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, run, err := s.scheduler.Trigger(ctx, chi.URLParam(r, "recurringID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, triggerResponse{OK: true, TaskID: t.ID, RunID: run.ID})
}
