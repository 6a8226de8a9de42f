package liveness

import (
	"context"
	"sort"
	"time"
)

// StaticSource serves a fixed activity map. Used by tests and by
// deployments without a session directory.
type StaticSource struct {
	Activity map[string]time.Time
	Now      func() time.Time
}

func (s *StaticSource) LastActivity(_ context.Context) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(s.Activity))
	for k, v := range s.Activity {
		out[k] = v
	}
	return out, nil
}

func (s *StaticSource) ActiveAgents(ctx context.Context, window time.Duration) ([]string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	cutoff := now().Add(-window)
	var active []string
	for id, t := range s.Activity {
		if t.After(cutoff) {
			active = append(active, id)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return s.Activity[active[i]].After(s.Activity[active[j]])
	})
	return active, nil
}
