package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mdonan90/ClawController/internal/activity"
	"github.com/mdonan90/ClawController/internal/eventbus"
	"github.com/mdonan90/ClawController/pkg/cerr"
)

type memRepo struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

func newMemRepo() *memRepo {
	return &memRepo{tasks: make(map[string]*Task)}
}

func (r *memRepo) Create(_ context.Context, t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	cp := *t
	return &cp, nil
}

func (r *memRepo) List(_ context.Context, filter ListFilter) ([]*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Task
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

func (r *memRepo) Update(_ context.Context, t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; !ok {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
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

func (r *memActivities) countByType(taskID string, typ activity.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.list {
		if a.TaskID == taskID && a.Type == typ {
			n++
		}
	}
	return n
}

func newTestMachine() (*StateMachine, *memRepo, *memActivities) {
	repo := newMemRepo()
	acts := &memActivities{}
	return NewStateMachine(repo, acts, eventbus.New()), repo, acts
}

func seedTask(t *testing.T, repo *memRepo, status Status, assignee string) *Task {
	t.Helper()
	tk := &Task{
		ID:         "task-" + string(status) + "-" + assignee,
		Title:      "test task",
		Status:     status,
		Priority:   PriorityNormal,
		AssigneeID: assignee,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := repo.Create(context.Background(), tk); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return tk
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name     string
		from     Status
		assignee string
		target   Status
		wantErr  bool
	}{
		{"assigned to in_progress", StatusAssigned, "dev", StatusInProgress, false},
		{"in_progress to review", StatusInProgress, "dev", StatusReview, false},
		{"inbox to in_progress refused", StatusInbox, "", StatusInProgress, true},
		{"inbox to review refused", StatusInbox, "", StatusReview, true},
		{"review back to assigned", StatusReview, "dev", StatusAssigned, false},
		{"inbox to assigned without assignee refused", StatusInbox, "", StatusAssigned, true},
		{"assigned to review refused", StatusAssigned, "dev", StatusReview, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, repo, _ := newTestMachine()
			tk := seedTask(t, repo, tt.from, tt.assignee)

			got, err := sm.Transition(context.Background(), tk.ID, tt.target, "user")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Transition(%s -> %s) succeeded, want error", tt.from, tt.target)
				}
				return
			}
			if err != nil {
				t.Fatalf("Transition(%s -> %s) failed: %v", tt.from, tt.target, err)
			}
			if got.Status != tt.target {
				t.Errorf("status = %s, want %s", got.Status, tt.target)
			}
		})
	}
}

func TestTransitionRefusesDone(t *testing.T) {
	sm, repo, _ := newTestMachine()
	tk := seedTask(t, repo, StatusReview, "dev")

	_, err := sm.Transition(context.Background(), tk.ID, StatusDone, "user")
	if err == nil {
		t.Fatal("Transition to DONE succeeded, want error")
	}
	if !cerr.IsCode(err, cerr.FailedPrecondition) {
		t.Errorf("error code = %v, want FailedPrecondition", err)
	}
}

func TestTransitionRefusesReviewRejectionPath(t *testing.T) {
	sm, repo, _ := newTestMachine()
	tk := seedTask(t, repo, StatusReview, "dev")

	_, err := sm.Transition(context.Background(), tk.ID, StatusInProgress, "user")
	if err == nil {
		t.Fatal("Transition REVIEW -> IN_PROGRESS succeeded, want error directing to review action")
	}
}

func TestTransitionSameStatusIsNoOp(t *testing.T) {
	sm, repo, acts := newTestMachine()
	tk := seedTask(t, repo, StatusInProgress, "dev")

	got, err := sm.Transition(context.Background(), tk.ID, StatusInProgress, "user")
	if err != nil {
		t.Fatalf("Transition to same status failed: %v", err)
	}
	if got.Status != StatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", got.Status)
	}
	if n := acts.countByType(tk.ID, activity.TypeStatusChange); n != 0 {
		t.Errorf("no-op transition wrote %d audit records, want 0", n)
	}
}

func TestTransitionWritesAuditRecord(t *testing.T) {
	sm, repo, acts := newTestMachine()
	tk := seedTask(t, repo, StatusAssigned, "dev")

	if _, err := sm.Transition(context.Background(), tk.ID, StatusInProgress, "dev"); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if n := acts.countByType(tk.ID, activity.TypeStatusChange); n != 1 {
		t.Fatalf("audit records = %d, want 1", n)
	}
}

func TestApprove(t *testing.T) {
	sm, repo, _ := newTestMachine()
	tk := seedTask(t, repo, StatusReview, "dev")
	tk.Reviewer = "lead"
	if err := repo.Update(context.Background(), tk); err != nil {
		t.Fatalf("seed reviewer: %v", err)
	}

	got, err := sm.Approve(context.Background(), tk.ID, "lead")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if got.Status != StatusDone {
		t.Errorf("status = %s, want DONE", got.Status)
	}
	if got.Reviewer != "" {
		t.Errorf("reviewer = %q, want cleared", got.Reviewer)
	}
}

func TestApproveOutsideReview(t *testing.T) {
	sm, repo, _ := newTestMachine()
	tk := seedTask(t, repo, StatusInProgress, "dev")

	if _, err := sm.Approve(context.Background(), tk.ID, "lead"); err == nil {
		t.Fatal("Approve of IN_PROGRESS task succeeded, want error")
	}
}

func TestReject(t *testing.T) {
	sm, repo, acts := newTestMachine()
	tk := seedTask(t, repo, StatusReview, "dev")

	got, err := sm.Reject(context.Background(), tk.ID, "lead", "tests are missing")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if got.Status != StatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", got.Status)
	}
	if got.Reviewer != "" {
		t.Errorf("reviewer = %q, want cleared", got.Reviewer)
	}
	if n := acts.countByType(tk.ID, activity.TypeMessage); n != 1 {
		t.Errorf("feedback messages = %d, want 1", n)
	}
}

func TestRejectRequiresFeedback(t *testing.T) {
	sm, repo, _ := newTestMachine()
	tk := seedTask(t, repo, StatusReview, "dev")

	if _, err := sm.Reject(context.Background(), tk.ID, "lead", ""); err == nil {
		t.Fatal("Reject without feedback succeeded, want error")
	}
}

func TestSendToReview(t *testing.T) {
	sm, repo, _ := newTestMachine()
	tk := seedTask(t, repo, StatusInProgress, "dev")

	got, err := sm.SendToReview(context.Background(), tk.ID, "lead", "dev")
	if err != nil {
		t.Fatalf("SendToReview failed: %v", err)
	}
	if got.Status != StatusReview {
		t.Errorf("status = %s, want REVIEW", got.Status)
	}
	if got.Reviewer != "lead" {
		t.Errorf("reviewer = %q, want lead", got.Reviewer)
	}
}

func TestSendToReviewTerminalStates(t *testing.T) {
	for _, status := range []Status{StatusReview, StatusDone} {
		sm, repo, _ := newTestMachine()
		tk := seedTask(t, repo, status, "dev")
		if _, err := sm.SendToReview(context.Background(), tk.ID, "lead", "dev"); err == nil {
			t.Errorf("SendToReview from %s succeeded, want error", status)
		}
	}
}

func TestTrySendToReviewSetsReviewer(t *testing.T) {
	sm, repo, _ := newTestMachine()
	tk := seedTask(t, repo, StatusInProgress, "dev")

	got, applied, err := sm.TrySendToReview(context.Background(), tk.ID, StatusInProgress, "lead", "auto")
	if err != nil {
		t.Fatalf("TrySendToReview failed: %v", err)
	}
	if !applied {
		t.Fatal("TrySendToReview did not apply, want applied")
	}
	if got.Status != StatusReview {
		t.Errorf("status = %s, want REVIEW", got.Status)
	}
	if got.Reviewer != "lead" {
		t.Errorf("reviewer = %q, want lead", got.Reviewer)
	}
}

func TestTrySendToReviewStalePrecondition(t *testing.T) {
	sm, repo, _ := newTestMachine()
	tk := seedTask(t, repo, StatusAssigned, "dev")

	got, applied, err := sm.TrySendToReview(context.Background(), tk.ID, StatusInProgress, "lead", "auto")
	if err != nil {
		t.Fatalf("TrySendToReview failed: %v", err)
	}
	if applied {
		t.Error("stale precondition applied, want no-op")
	}
	if got.Status != StatusAssigned {
		t.Errorf("status = %s, want ASSIGNED", got.Status)
	}
	if got.Reviewer != "" {
		t.Errorf("reviewer = %q, want unset on no-op", got.Reviewer)
	}
}

// The reviewer lands in the same guarded write as the status change, so a
// racing assignment cannot erase it, nor the other way around.
func TestTrySendToReviewConcurrentWithAssign(t *testing.T) {
	for i := 0; i < 25; i++ {
		sm, repo, _ := newTestMachine()
		tk := seedTask(t, repo, StatusInProgress, "dev")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, _, err := sm.TrySendToReview(context.Background(), tk.ID, StatusInProgress, "lead", "auto"); err != nil {
				t.Errorf("TrySendToReview failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := sm.Assign(context.Background(), tk.ID, "other", "user"); err != nil {
				t.Errorf("Assign failed: %v", err)
			}
		}()
		wg.Wait()

		got, err := repo.Get(context.Background(), tk.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Status != StatusReview {
			t.Fatalf("status = %s, want REVIEW", got.Status)
		}
		if got.AssigneeID != "other" {
			t.Fatalf("assignee = %q, want other", got.AssigneeID)
		}
		if got.Reviewer != "lead" {
			t.Fatalf("reviewer = %q, want lead", got.Reviewer)
		}
	}
}

func TestAssignAdvancesInbox(t *testing.T) {
	sm, repo, _ := newTestMachine()
	tk := seedTask(t, repo, StatusInbox, "")

	got, err := sm.Assign(context.Background(), tk.ID, "dev", "user")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if got.Status != StatusAssigned {
		t.Errorf("status = %s, want ASSIGNED", got.Status)
	}
	if got.AssigneeID != "dev" {
		t.Errorf("assignee = %q, want dev", got.AssigneeID)
	}
}

func TestAssignKeepsNonInboxStatus(t *testing.T) {
	sm, repo, _ := newTestMachine()
	tk := seedTask(t, repo, StatusInProgress, "dev")

	got, err := sm.Assign(context.Background(), tk.ID, "other", "user")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if got.Status != StatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", got.Status)
	}
	if got.AssigneeID != "other" {
		t.Errorf("assignee = %q, want other", got.AssigneeID)
	}
}

func TestAssignRequiresAgent(t *testing.T) {
	sm, repo, _ := newTestMachine()
	tk := seedTask(t, repo, StatusInbox, "")

	if _, err := sm.Assign(context.Background(), tk.ID, "", "user"); err == nil {
		t.Fatal("Assign with empty agent succeeded, want error")
	}
}

// Concurrent triggers racing on the same precondition must apply exactly
// once and leave exactly one audit record behind.
func TestTryTransitionConcurrent(t *testing.T) {
	sm, repo, acts := newTestMachine()
	tk := seedTask(t, repo, StatusAssigned, "dev")

	const workers = 16
	applied := make(chan bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := sm.TryTransition(context.Background(), tk.ID, StatusAssigned, StatusInProgress, "auto")
			if err != nil {
				t.Errorf("TryTransition failed: %v", err)
				return
			}
			applied <- ok
		}()
	}
	wg.Wait()
	close(applied)

	appliedCount := 0
	for ok := range applied {
		if ok {
			appliedCount++
		}
	}
	if appliedCount != 1 {
		t.Errorf("applied %d times, want exactly 1", appliedCount)
	}
	if n := acts.countByType(tk.ID, activity.TypeStatusChange); n != 1 {
		t.Errorf("audit records = %d, want 1", n)
	}

	got, err := repo.Get(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusInProgress {
		t.Errorf("final status = %s, want IN_PROGRESS", got.Status)
	}
}

func TestTryTransitionStalePrecondition(t *testing.T) {
	sm, repo, _ := newTestMachine()
	tk := seedTask(t, repo, StatusInProgress, "dev")

	got, ok, err := sm.TryTransition(context.Background(), tk.ID, StatusAssigned, StatusInProgress, "auto")
	if err != nil {
		t.Fatalf("TryTransition failed: %v", err)
	}
	if ok {
		t.Error("stale precondition applied, want no-op")
	}
	if got.Status != StatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", got.Status)
	}
}
