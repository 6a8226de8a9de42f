package agent

import (
	"testing"
	"time"
)

func TestLiveStatus(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		lastActivity time.Time
		want         Status
	}{
		{"no activity", time.Time{}, StatusStandby},
		{"just now", now.Add(-time.Second), StatusWorking},
		{"four minutes ago", now.Add(-4 * time.Minute), StatusWorking},
		{"ten minutes ago", now.Add(-10 * time.Minute), StatusIdle},
		{"half an hour ago", now.Add(-30 * time.Minute), StatusStandby},
		{"yesterday", now.Add(-24 * time.Hour), StatusStandby},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LiveStatus(tt.lastActivity, now); got != tt.want {
				t.Errorf("LiveStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseStatus("WORKING"); err != nil {
		t.Errorf("ParseStatus(WORKING) failed: %v", err)
	}
	if _, err := ParseStatus("SLEEPING"); err == nil {
		t.Error("ParseStatus(SLEEPING) succeeded, want error")
	}
}
