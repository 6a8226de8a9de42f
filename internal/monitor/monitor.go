// Package monitor periodically scans active tasks and alerts when one has
// sat in a status past its threshold. Notification state is persisted so
// restarts do not re-alert inside the cooldown.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mdonan90/ClawController/internal/agent"
	"github.com/mdonan90/ClawController/internal/eventbus"
	"github.com/mdonan90/ClawController/internal/notification"
	"github.com/mdonan90/ClawController/internal/task"
	"github.com/mdonan90/ClawController/pkg/storage"
)

type Config struct {
	Interval      time.Duration
	Cooldown      time.Duration
	OfflineWindow time.Duration
	// AlertAgent receives stuck-task alerts.
	AlertAgent string
	BoardURL   string
}

// StuckTask describes one task flagged on a pass.
type StuckTask struct {
	TaskID         string  `json:"task_id"`
	Title          string  `json:"title"`
	Status         string  `json:"status"`
	Priority       string  `json:"priority"`
	AssigneeID     string  `json:"assignee_id,omitempty"`
	AssigneeName   string  `json:"assignee_name,omitempty"`
	HoursStuck     float64 `json:"time_stuck_hours"`
	ThresholdHours float64 `json:"threshold_hours"`
}

// OfflineAgent describes an agent holding work but showing no recent task
// updates. Informational only.
type OfflineAgent struct {
	AgentID           string `json:"agent_id"`
	AgentName         string `json:"agent_name"`
	Status            string `json:"status"`
	AssignedTaskCount int    `json:"assigned_task_count"`
}

// Summary is the structured result of one pass.
type Summary struct {
	StuckTasks        []StuckTask    `json:"stuck_tasks"`
	NotificationsSent int            `json:"notifications_sent"`
	AgentsOffline     []OfflineAgent `json:"agents_offline"`
	RunTimestamp      time.Time      `json:"run_timestamp"`
}

// Status reports monitor statistics without running a pass.
type Status struct {
	LastRun               time.Time `json:"last_run"`
	TotalNotifications    int       `json:"total_notifications_sent"`
	CurrentlyTrackedTasks int       `json:"currently_tracked_tasks"`
}

type Monitor struct {
	tasks    task.Repository
	agents   agent.Repository
	store    storage.Storage
	notifier notification.Notifier
	bus      *eventbus.Bus
	cfg      Config

	now func() time.Time
}

func New(tasks task.Repository, agents agent.Repository, store storage.Storage, notifier notification.Notifier, bus *eventbus.Bus, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 6 * time.Hour
	}
	if cfg.OfflineWindow <= 0 {
		cfg.OfflineWindow = 6 * time.Hour
	}
	if cfg.AlertAgent == "" {
		cfg.AlertAgent = "main"
	}
	return &Monitor{
		tasks:    tasks,
		agents:   agents,
		store:    store,
		notifier: notifier,
		bus:      bus,
		cfg:      cfg,
		now:      time.Now,
	}
}

// RunPass executes one scan and returns its summary. Collaborator failures
// inside the pass are logged, never propagated; only a task-listing failure
// aborts the pass.
func (m *Monitor) RunPass(ctx context.Context) (*Summary, error) {
	now := m.now()
	summary := &Summary{RunTimestamp: now}

	active, err := m.tasks.List(ctx, task.ListFilter{ExcludeDone: true})
	if err != nil {
		return nil, err
	}

	state := loadState(ctx, m.store)
	currentlyStuck := make(map[string]bool)

	for _, t := range active {
		info, ok := m.checkStuck(ctx, t, now)
		if !ok {
			continue
		}
		currentlyStuck[t.ID] = true
		summary.StuckTasks = append(summary.StuckTasks, info)

		if !m.shouldNotify(state, t.ID, now) {
			continue
		}
		if m.notifyStuck(ctx, state, info) {
			summary.NotificationsSent++
			recordNotified(state, t.ID, now)
			m.bus.PublishNew(eventbus.TypeTaskStuck, t.ID, map[string]string{
				"status":      info.Status,
				"hours_stuck": fmt.Sprintf("%.1f", info.HoursStuck),
			})
		}
	}

	summary.AgentsOffline = m.checkOfflineAgents(ctx, now)

	// Resolution clears history: a task that recovered and gets stuck again
	// later is a fresh alert, not an escalation.
	for id := range state.StuckTasks {
		if !currentlyStuck[id] {
			delete(state.StuckTasks, id)
		}
	}

	state.LastRun = now
	saveState(ctx, m.store, state)

	slog.InfoContext(ctx, "monitor: pass complete",
		"stuck", len(summary.StuckTasks),
		"notified", summary.NotificationsSent,
		"offline_agents", len(summary.AgentsOffline))
	return summary, nil
}

func (m *Monitor) checkStuck(ctx context.Context, t *task.Task, now time.Time) (StuckTask, bool) {
	if t.UpdatedAt.IsZero() {
		return StuckTask{}, false
	}
	threshold, ok := Threshold(t.Priority, t.Status)
	if !ok {
		return StuckTask{}, false
	}
	inStatus := now.Sub(t.UpdatedAt)
	if inStatus <= threshold {
		return StuckTask{}, false
	}

	info := StuckTask{
		TaskID:         t.ID,
		Title:          t.Title,
		Status:         string(t.Status),
		Priority:       string(t.Priority),
		AssigneeID:     t.AssigneeID,
		HoursStuck:     roundHours(inStatus),
		ThresholdHours: roundHours(threshold),
	}
	if t.AssigneeID != "" {
		if a, err := m.agents.Get(ctx, t.AssigneeID); err == nil {
			info.AssigneeName = a.Name
		}
	}
	return info, true
}

func roundHours(d time.Duration) float64 {
	return math.Round(d.Hours()*10) / 10
}

// shouldNotify applies the dedup policy: alert immediately on first
// detection, then stay silent through the cooldown, then escalate.
func (m *Monitor) shouldNotify(state *State, taskID string, now time.Time) bool {
	ts, tracked := state.StuckTasks[taskID]
	if !tracked {
		return true
	}
	if !ts.LastNotified.IsZero() && now.Sub(ts.LastNotified) < m.cfg.Cooldown {
		return false
	}
	return ts.ConsecutiveCount >= 1
}

func (m *Monitor) notifyStuck(ctx context.Context, state *State, info StuckTask) bool {
	count := 1
	if ts, ok := state.StuckTasks[info.TaskID]; ok {
		count = ts.ConsecutiveCount + 1
	}
	msg := stuckAlertMessage(info, count, m.cfg.BoardURL)
	if err := m.notifier.Notify(ctx, m.cfg.AlertAgent, msg); err != nil {
		slog.WarnContext(ctx, "monitor: failed to notify about stuck task",
			"task_id", info.TaskID, "error", err)
		return false
	}
	slog.InfoContext(ctx, "monitor: stuck task alert sent",
		"task_id", info.TaskID, "title", info.Title, "consecutive", count)
	return true
}

func recordNotified(state *State, taskID string, now time.Time) {
	ts, ok := state.StuckTasks[taskID]
	if !ok {
		ts = &TaskState{FirstDetected: now}
		state.StuckTasks[taskID] = ts
	}
	ts.LastNotified = now
	ts.ConsecutiveCount++
	state.NotificationCount++
}

// checkOfflineAgents lists agents holding ASSIGNED or IN_PROGRESS tasks
// none of which have been touched within the offline window.
func (m *Monitor) checkOfflineAgents(ctx context.Context, now time.Time) []OfflineAgent {
	var offline []OfflineAgent

	all, err := m.agents.List(ctx)
	if err != nil {
		slog.WarnContext(ctx, "monitor: failed to list agents for offline check", "error", err)
		return nil
	}
	cutoff := now.Add(-m.cfg.OfflineWindow)

	for _, a := range all {
		held, err := m.tasks.List(ctx, task.ListFilter{AssigneeID: a.ID})
		if err != nil {
			continue
		}
		holding := 0
		recent := false
		for _, t := range held {
			if t.Status == task.StatusAssigned || t.Status == task.StatusInProgress {
				holding++
			}
			if t.UpdatedAt.After(cutoff) {
				recent = true
			}
		}
		if holding > 0 && !recent {
			offline = append(offline, OfflineAgent{
				AgentID:           a.ID,
				AgentName:         a.Name,
				Status:            string(a.Status),
				AssignedTaskCount: holding,
			})
		}
	}
	return offline
}

// MonitorStatus reads statistics from the persisted state without scanning.
func (m *Monitor) MonitorStatus(ctx context.Context) *Status {
	state := loadState(ctx, m.store)
	return &Status{
		LastRun:               state.LastRun,
		TotalNotifications:    state.NotificationCount,
		CurrentlyTrackedTasks: len(state.StuckTasks),
	}
}

// Run executes passes on the configured interval until ctx is done. One
// pass runs immediately on start.
func (m *Monitor) Run(ctx context.Context) {
	slog.InfoContext(ctx, "monitor: started", "interval", m.cfg.Interval)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	if _, err := m.RunPass(ctx); err != nil {
		slog.ErrorContext(ctx, "monitor: pass failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "monitor: stopped")
			return
		case <-ticker.C:
			if _, err := m.RunPass(ctx); err != nil {
				slog.ErrorContext(ctx, "monitor: pass failed", "error", err)
			}
		}
	}
}

func stuckAlertMessage(info StuckTask, consecutiveCount int, boardURL string) string {
	urgency := "🟡 Task Stuck Alert"
	if consecutiveCount > 1 {
		urgency = "🔴 PERSISTENT Stuck Task Alert"
	}

	assigneeInfo := "\n**Assignee:** Unassigned"
	if info.AssigneeID != "" {
		name := info.AssigneeName
		if name == "" {
			name = "Unknown"
		}
		assigneeInfo = fmt.Sprintf("\n**Assignee:** %s (%s)", name, info.AssigneeID)
	}

	return fmt.Sprintf(`%s

**Task:** %s
**Status:** %s for %.1f hours%s
**Priority:** %s
**Task ID:** %s

**Threshold exceeded:** %.1f hours
**Consecutive detections:** %d

**Possible actions:**
- Check if agent is available and responsive
- Reassign task to another agent
- Update task status or priority
- Add clarifying comments or instructions

View in ClawController: %s`,
		urgency, info.Title, info.Status, info.HoursStuck, assigneeInfo,
		info.Priority, info.TaskID, info.ThresholdHours, consecutiveCount, boardURL)
}
