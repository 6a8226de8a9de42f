// Package liveness reports which agents have active sessions, based on
// the modification times of their session transcript files.
package liveness

import (
	"context"
	"time"
)

// Source answers liveness queries about agents.
type Source interface {
	// LastActivity returns the most recent session activity per agent ID.
	// Agents without any session files are absent from the map.
	LastActivity(ctx context.Context) (map[string]time.Time, error)

	// ActiveAgents returns the IDs of agents whose sessions were touched
	// within the window, most recent first.
	ActiveAgents(ctx context.Context, window time.Duration) ([]string, error)
}
