package autotransition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mdonan90/ClawController/internal/activity"
	"github.com/mdonan90/ClawController/internal/agent"
	"github.com/mdonan90/ClawController/internal/eventbus"
	"github.com/mdonan90/ClawController/internal/liveness"
	"github.com/mdonan90/ClawController/internal/notification"
	"github.com/mdonan90/ClawController/internal/task"
	"github.com/mdonan90/ClawController/pkg/cerr"
)

type memTasks struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: make(map[string]*task.Task)}
}

func (r *memTasks) Create(_ context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *memTasks) Get(_ context.Context, id string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	cp := *t
	return &cp, nil
}

func (r *memTasks) List(_ context.Context, filter task.ListFilter) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.Task
	for _, t := range r.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.AssigneeID != "" && t.AssigneeID != filter.AssigneeID {
			continue
		}
		if filter.ExcludeDone && t.Status.Terminal() {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memTasks) Update(_ context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; !ok {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *memTasks) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return nil
}

type memActivities struct {
	mu   sync.Mutex
	list []*activity.Activity
}

func (r *memActivities) Create(_ context.Context, a *activity.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.list = append(r.list, &cp)
	return nil
}

func (r *memActivities) List(_ context.Context, taskID string, limit, offset int) ([]*activity.Activity, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*activity.Activity
	for _, a := range r.list {
		if a.TaskID == taskID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (r *memActivities) HasMessageFrom(_ context.Context, taskID, agentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.list {
		if a.TaskID == taskID && a.AgentID == agentID && a.Type == activity.TypeMessage {
			return true, nil
		}
	}
	return false, nil
}

func (r *memActivities) DeleteByTask(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*activity.Activity
	for _, a := range r.list {
		if a.TaskID != taskID {
			kept = append(kept, a)
		}
	}
	r.list = kept
	return nil
}

type memAgents struct {
	agents map[string]*agent.Agent
}

func (r *memAgents) Create(_ context.Context, a *agent.Agent) error {
	r.agents[a.ID] = a
	return nil
}

func (r *memAgents) Get(_ context.Context, id string) (*agent.Agent, error) {
	a, ok := r.agents[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "agent not found", nil)
	}
	return a, nil
}

func (r *memAgents) List(_ context.Context) ([]*agent.Agent, error) {
	var out []*agent.Agent
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out, nil
}

func (r *memAgents) Update(_ context.Context, a *agent.Agent) error {
	r.agents[a.ID] = a
	return nil
}

func (r *memAgents) Delete(_ context.Context, id string) error {
	delete(r.agents, id)
	return nil
}

func (r *memAgents) FindLead(_ context.Context) (*agent.Agent, error) {
	for _, a := range r.agents {
		if a.Role == agent.RoleLead {
			return a, nil
		}
	}
	return nil, nil
}

type fixture struct {
	engine   *Engine
	tasks    *memTasks
	acts     *memActivities
	agents   *memAgents
	notifier *notification.Recorder
	liveness *liveness.StaticSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tasks := newMemTasks()
	acts := &memActivities{}
	agents := &memAgents{agents: make(map[string]*agent.Agent)}
	notifier := &notification.Recorder{}
	src := &liveness.StaticSource{Activity: make(map[string]time.Time)}
	bus := eventbus.New()
	sm := task.NewStateMachine(tasks, acts, bus)
	engine := New(tasks, acts, agents, sm, bus, notifier, src, Config{
		LeadAgentFallback: "main",
	})
	return &fixture{engine: engine, tasks: tasks, acts: acts, agents: agents, notifier: notifier, liveness: src}
}

func (f *fixture) seedTask(t *testing.T, id string, status task.Status, assignee string) *task.Task {
	t.Helper()
	tk := &task.Task{
		ID:         id,
		Title:      "implement feature",
		Status:     status,
		Priority:   task.PriorityNormal,
		AssigneeID: assignee,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := f.tasks.Create(context.Background(), tk); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return tk
}

func TestContainsCompletionKeyword(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"All done, please take a look", true},
		{"DONE", true},
		{"Task completed successfully", true},
		{"ready for review", true},
		{"  Finished the migration  ", true},
		{"✅ done", true},
		{"submitted for review just now", true},
		{"still working on the parser", false},
		{"blocked on credentials", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := containsCompletionKeyword(tt.message); got != tt.want {
			t.Errorf("containsCompletionKeyword(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestFirstActivityStartsTask(t *testing.T) {
	f := newFixture(t)
	f.seedTask(t, "t1", task.StatusAssigned, "dev")

	res, err := f.engine.RecordActivity(context.Background(), "t1", "dev", "picking this up now")
	if err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	if !res.AutoTransitioned {
		t.Fatal("first activity did not auto-transition")
	}
	if res.NewStatus != task.StatusInProgress {
		t.Errorf("new status = %s, want IN_PROGRESS", res.NewStatus)
	}
}

func TestSecondActivityDoesNotRetrigger(t *testing.T) {
	f := newFixture(t)
	f.seedTask(t, "t1", task.StatusAssigned, "dev")

	if _, err := f.engine.RecordActivity(context.Background(), "t1", "dev", "picking this up now"); err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	res, err := f.engine.RecordActivity(context.Background(), "t1", "dev", "still digging through the logs")
	if err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	if res.AutoTransitioned {
		t.Errorf("second activity auto-transitioned to %s, want no-op", res.NewStatus)
	}
}

func TestActivityFromNonAssigneeDoesNotStartTask(t *testing.T) {
	f := newFixture(t)
	f.seedTask(t, "t1", task.StatusAssigned, "dev")

	res, err := f.engine.RecordActivity(context.Background(), "t1", "observer", "any updates here?")
	if err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	if res.AutoTransitioned {
		t.Error("non-assignee message auto-transitioned the task")
	}
	got, _ := f.tasks.Get(context.Background(), "t1")
	if got.Status != task.StatusAssigned {
		t.Errorf("status = %s, want ASSIGNED", got.Status)
	}
}

func TestCompletionKeywordSendsToReview(t *testing.T) {
	f := newFixture(t)
	f.agents.agents["lead-1"] = &agent.Agent{ID: "lead-1", Name: "Lead", Role: agent.RoleLead}
	f.seedTask(t, "t1", task.StatusInProgress, "dev")

	res, err := f.engine.RecordActivity(context.Background(), "t1", "dev", "All done, ready for review")
	if err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	if !res.AutoTransitioned || res.NewStatus != task.StatusReview {
		t.Fatalf("result = %+v, want auto-transition to REVIEW", res)
	}

	got, _ := f.tasks.Get(context.Background(), "t1")
	if got.Reviewer != "lead-1" {
		t.Errorf("reviewer = %q, want lead-1", got.Reviewer)
	}

	sent := f.notifier.Sent()
	if len(sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(sent))
	}
	if sent[0].AgentID != "lead-1" {
		t.Errorf("notified %q, want lead-1", sent[0].AgentID)
	}
}

func TestCompletionFallsBackToConfiguredReviewer(t *testing.T) {
	f := newFixture(t)
	f.seedTask(t, "t1", task.StatusInProgress, "dev")

	if _, err := f.engine.RecordActivity(context.Background(), "t1", "dev", "marking done"); err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	got, _ := f.tasks.Get(context.Background(), "t1")
	if got.Reviewer != "main" {
		t.Errorf("reviewer = %q, want fallback main", got.Reviewer)
	}
}

// The keyword trigger has no author condition: any message on an in-progress
// task counts, not just the assignee's.
func TestCompletionKeywordFromNonAssigneeSendsToReview(t *testing.T) {
	f := newFixture(t)
	f.seedTask(t, "t1", task.StatusInProgress, "dev")

	res, err := f.engine.RecordActivity(context.Background(), "t1", "other-agent", "this is DONE")
	if err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	if !res.AutoTransitioned || res.NewStatus != task.StatusReview {
		t.Fatalf("result = %+v, want auto-transition to REVIEW", res)
	}

	got, _ := f.tasks.Get(context.Background(), "t1")
	if got.Status != task.StatusReview {
		t.Errorf("status = %s, want REVIEW", got.Status)
	}
	if got.Reviewer != "main" {
		t.Errorf("reviewer = %q, want fallback main", got.Reviewer)
	}
}

func TestNotifierFailureDoesNotFailRecord(t *testing.T) {
	f := newFixture(t)
	f.notifier.Err = errors.New("gateway unreachable")
	f.seedTask(t, "t1", task.StatusInProgress, "dev")

	res, err := f.engine.RecordActivity(context.Background(), "t1", "dev", "task complete")
	if err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	if !res.AutoTransitioned || res.NewStatus != task.StatusReview {
		t.Errorf("result = %+v, want auto-transition to REVIEW despite notify failure", res)
	}
}

func TestFirstActivityWithKeywordGoesStraightToReview(t *testing.T) {
	f := newFixture(t)
	f.seedTask(t, "t1", task.StatusAssigned, "dev")

	res, err := f.engine.RecordActivity(context.Background(), "t1", "dev", "already finished this yesterday")
	if err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	if !res.AutoTransitioned || res.NewStatus != task.StatusReview {
		t.Errorf("result = %+v, want start then completion in one record", res)
	}
}

func TestPollStartsTasksOfActiveAgents(t *testing.T) {
	f := newFixture(t)
	f.seedTask(t, "t1", task.StatusAssigned, "dev")
	f.seedTask(t, "t2", task.StatusAssigned, "idle-dev")
	f.liveness.Activity["dev"] = time.Now()
	f.liveness.Activity["idle-dev"] = time.Now().Add(-time.Hour)

	if err := f.engine.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce failed: %v", err)
	}

	t1, _ := f.tasks.Get(context.Background(), "t1")
	if t1.Status != task.StatusInProgress {
		t.Errorf("active agent task status = %s, want IN_PROGRESS", t1.Status)
	}
	t2, _ := f.tasks.Get(context.Background(), "t2")
	if t2.Status != task.StatusAssigned {
		t.Errorf("inactive agent task status = %s, want ASSIGNED", t2.Status)
	}
}
