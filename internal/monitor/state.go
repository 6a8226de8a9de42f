package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mdonan90/ClawController/pkg/storage"
)

const statePath = "monitor/state.yaml"

// TaskState tracks notification history for one stuck task. It exists only
// while the task stays stuck; resolution deletes it, so a later
// re-detection starts fresh.
type TaskState struct {
	FirstDetected    time.Time `yaml:"first_detected"`
	LastNotified     time.Time `yaml:"last_notified"`
	ConsecutiveCount int       `yaml:"consecutive_count"`
}

// State is the monitor's persisted memory between passes.
type State struct {
	StuckTasks        map[string]*TaskState `yaml:"stuck_tasks"`
	LastRun           time.Time             `yaml:"last_run"`
	NotificationCount int                   `yaml:"notification_count"`
}

func newState() *State {
	return &State{StuckTasks: make(map[string]*TaskState)}
}

// loadState reads the persisted state. Missing or corrupt state degrades to
// an empty state with a warning; the monitor never fails a pass over it.
func loadState(ctx context.Context, s storage.Storage) *State {
	data, err := s.Read(ctx, statePath)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "monitor: failed to load state, starting empty", "error", err)
		}
		return newState()
	}
	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		slog.WarnContext(ctx, "monitor: corrupt state, starting empty", "error", err)
		return newState()
	}
	if state.StuckTasks == nil {
		state.StuckTasks = make(map[string]*TaskState)
	}
	return &state
}

func saveState(ctx context.Context, s storage.Storage, state *State) {
	data, err := yaml.Marshal(state)
	if err != nil {
		slog.ErrorContext(ctx, "monitor: failed to marshal state", "error", err)
		return
	}
	if err := s.Write(ctx, statePath, data); err != nil {
		slog.ErrorContext(ctx, "monitor: failed to save state", "error", err)
	}
}
