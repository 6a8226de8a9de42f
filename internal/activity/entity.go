package activity

import "time"

// Type distinguishes agent-authored messages from audit entries written by
// the state machine. Auto-transition triggers only consider messages.
type Type string

const (
	TypeMessage      Type = "MESSAGE"
	TypeStatusChange Type = "STATUS_CHANGE"
)

type Activity struct {
	ID        string    `yaml:"id" json:"id"`
	TaskID    string    `yaml:"task_id" json:"task_id"`
	AgentID   string    `yaml:"agent_id" json:"agent_id"`
	Type      Type      `yaml:"type" json:"type"`
	Message   string    `yaml:"message" json:"message"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}
