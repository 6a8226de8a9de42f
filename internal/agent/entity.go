package agent

import (
	"fmt"
	"time"
)

type Role string

const (
	// RoleLead marks the lead agent, the default reviewer for tasks that
	// reach REVIEW without one.
	RoleLead       Role = "LEAD"
	RoleIntegrator Role = "INT"
	RoleSpecialist Role = "SPC"
)

type Status string

const (
	StatusWorking Status = "WORKING"
	StatusIdle    Status = "IDLE"
	// StatusStandby means configured but inactive, ready to activate.
	StatusStandby Status = "STANDBY"
	StatusOffline Status = "OFFLINE"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusWorking, StatusIdle, StatusStandby, StatusOffline:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown agent status %q", s)
}

type Agent struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Role        Role      `yaml:"role" json:"role"`
	Description string    `yaml:"description" json:"description"`
	Avatar      string    `yaml:"avatar" json:"avatar"`
	Status      Status    `yaml:"status" json:"status"`
	Workspace   string    `yaml:"workspace" json:"workspace"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
}

// Session activity thresholds for the derived live status.
const (
	workingWindow = 5 * time.Minute
	idleWindow    = 30 * time.Minute
)

// LiveStatus derives an agent's status from its most recent session
// activity: fresh activity means WORKING, stale means IDLE, none or very
// old means STANDBY.
func LiveStatus(lastActivity time.Time, now time.Time) Status {
	if lastActivity.IsZero() {
		return StatusStandby
	}
	elapsed := now.Sub(lastActivity)
	switch {
	case elapsed < workingWindow:
		return StatusWorking
	case elapsed < idleWindow:
		return StatusIdle
	default:
		return StatusStandby
	}
}
