package liveness

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSession(t *testing.T, root, agentID, name string, mtime time.Time) {
	t.Helper()
	dir := filepath.Join(root, agentID, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir sessions: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write session: %v", err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestSessionSourceLastActivity(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeSession(t, root, "alpha", "old.jsonl", now.Add(-time.Hour))
	writeSession(t, root, "alpha", "new.jsonl", now.Add(-time.Minute))
	writeSession(t, root, "beta", "only.jsonl", now.Add(-10*time.Minute))
	// Non-transcript files are ignored.
	writeSession(t, root, "gamma", "notes.txt", now)

	src := NewSessionSource(root)
	last, err := src.LastActivity(context.Background())
	if err != nil {
		t.Fatalf("LastActivity failed: %v", err)
	}

	if len(last) != 2 {
		t.Fatalf("LastActivity returned %d agents, want 2: %v", len(last), last)
	}
	if got := last["alpha"]; got.Before(now.Add(-2 * time.Minute)) {
		t.Errorf("alpha last activity = %v, want newest session mtime", got)
	}
	if _, ok := last["gamma"]; ok {
		t.Error("agent with only non-jsonl files reported as active")
	}
}

func TestSessionSourceActiveAgents(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeSession(t, root, "fresh", "s.jsonl", now.Add(-30*time.Second))
	writeSession(t, root, "fresher", "s.jsonl", now.Add(-5*time.Second))
	writeSession(t, root, "stale", "s.jsonl", now.Add(-time.Hour))

	src := NewSessionSource(root)
	active, err := src.ActiveAgents(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("ActiveAgents failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active agents = %v, want fresh and fresher", active)
	}
	if active[0] != "fresher" || active[1] != "fresh" {
		t.Errorf("active order = %v, want most recent first", active)
	}
}

func TestSessionSourceMissingRoot(t *testing.T) {
	src := NewSessionSource(filepath.Join(t.TempDir(), "does-not-exist"))
	last, err := src.LastActivity(context.Background())
	if err != nil {
		t.Fatalf("LastActivity on missing root failed: %v", err)
	}
	if len(last) != 0 {
		t.Errorf("LastActivity on missing root = %v, want empty", last)
	}
}

func TestStaticSourceActiveAgents(t *testing.T) {
	now := time.Now()
	src := &StaticSource{Activity: map[string]time.Time{
		"a": now.Add(-10 * time.Second),
		"b": now.Add(-10 * time.Minute),
	}}
	active, err := src.ActiveAgents(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("ActiveAgents failed: %v", err)
	}
	if len(active) != 1 || active[0] != "a" {
		t.Errorf("active = %v, want [a]", active)
	}
}
