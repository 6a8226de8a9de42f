// Package notification delivers best-effort messages to agent identities.
// Delivery is fire-and-forget: callers log failures and move on, and no
// component blocks on a notification.
package notification

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/mdonan90/ClawController/pkg/shellformat"
)

type Notifier interface {
	// Notify sends message to the agent. The returned error only reports
	// whether delivery could be started; it must never be treated as a
	// delivery guarantee.
	Notify(ctx context.Context, agentID, message string) error
}

// ExecNotifier shells out to the agent gateway CLI. The child is started
// detached and reaped in the background; Notify never waits for delivery.
type ExecNotifier struct {
	command string
	workdir string
}

func NewExecNotifier(command string) *ExecNotifier {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &ExecNotifier{command: command, workdir: home}
}

func (n *ExecNotifier) Notify(ctx context.Context, agentID, message string) error {
	args := []string{"agent", "--agent", agentID, "--message", message}
	slog.DebugContext(ctx, "notifier: exec", "command", shellformat.Command(n.command, args...))

	cmd := exec.Command(n.command, args...)
	cmd.Dir = n.workdir
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap the child so it doesn't linger as a zombie.
	go func() { _ = cmd.Wait() }()
	return nil
}

// Recorded is one captured notification.
type Recorded struct {
	AgentID string
	Message string
}

// Recorder captures notifications for tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Recorded
	// Err, when set, is returned from every Notify call.
	Err error
}

func (r *Recorder) Notify(_ context.Context, agentID, message string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Recorded{AgentID: agentID, Message: message})
	return nil
}

func (r *Recorder) Sent() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.sent))
	copy(out, r.sent)
	return out
}
