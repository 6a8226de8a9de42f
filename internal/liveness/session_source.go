package liveness

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SessionSource derives agent liveness from session transcript files laid
// out as <root>/<agent>/sessions/*.jsonl. The newest file mtime per agent
// is its last activity.
//
// Results are cached and invalidated by an fsnotify watcher on the agent
// directories. A periodic full rescan covers agents created after the
// watcher was set up and filesystems where fsnotify is unreliable.
type SessionSource struct {
	root string
	now  func() time.Time

	mu        sync.Mutex
	cache     map[string]time.Time
	scannedAt time.Time
	maxAge    time.Duration
}

func NewSessionSource(root string) *SessionSource {
	return &SessionSource{
		root:   root,
		now:    time.Now,
		maxAge: 30 * time.Second,
	}
}

func (s *SessionSource) LastActivity(ctx context.Context) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil || s.now().Sub(s.scannedAt) > s.maxAge {
		if err := s.rescanLocked(ctx); err != nil {
			return nil, err
		}
	}
	out := make(map[string]time.Time, len(s.cache))
	for k, v := range s.cache {
		out[k] = v
	}
	return out, nil
}

func (s *SessionSource) ActiveAgents(ctx context.Context, window time.Duration) ([]string, error) {
	last, err := s.LastActivity(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-window)
	var active []string
	for id, t := range last {
		if t.After(cutoff) {
			active = append(active, id)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return last[active[i]].After(last[active[j]])
	})
	return active, nil
}

// Watch invalidates the cache on filesystem events under the session root.
// It blocks until ctx is done. Watch is optional; without it the source
// falls back to periodic rescans.
func (s *SessionSource) Watch(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.WarnContext(ctx, "liveness: fsnotify unavailable, relying on rescans", "error", err)
		return
	}
	defer watcher.Close()

	// Watch each agent's sessions directory. New agents are picked up by
	// the periodic rescan, which re-adds watches.
	s.addWatches(ctx, watcher)

	ticker := time.NewTicker(s.maxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			s.mu.Lock()
			s.cache = nil
			s.mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "liveness: fsnotify error", "error", err)
		case <-ticker.C:
			s.addWatches(ctx, watcher)
		}
	}
}

func (s *SessionSource) addWatches(ctx context.Context, watcher *fsnotify.Watcher) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, e.Name(), "sessions")
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		// Add is idempotent for already-watched paths.
		if err := watcher.Add(dir); err != nil {
			slog.DebugContext(ctx, "liveness: failed to watch sessions dir", "dir", dir, "error", err)
		}
	}
}

func (s *SessionSource) rescanLocked(ctx context.Context) error {
	result := make(map[string]time.Time)

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			s.cache = result
			s.scannedAt = s.now()
			return nil
		}
		return err
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		agentID := e.Name()
		sessionsDir := filepath.Join(s.root, agentID, "sessions")
		files, err := os.ReadDir(sessionsDir)
		if err != nil {
			continue
		}
		var latest time.Time
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".jsonl") {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(latest) {
				latest = info.ModTime()
			}
		}
		if !latest.IsZero() {
			result[agentID] = latest
		}
	}

	slog.DebugContext(ctx, "liveness: rescanned sessions", "agents", len(result))
	s.cache = result
	s.scannedAt = s.now()
	return nil
}
