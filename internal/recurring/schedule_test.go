package recurring

import (
	"testing"
	"time"
)

func TestScheduleValidate(t *testing.T) {
	tests := []struct {
		name     string
		schedule Schedule
		wantErr  bool
	}{
		{"daily", Schedule{Type: ScheduleDaily, Time: "09:00"}, false},
		{"daily without time", Schedule{Type: ScheduleDaily}, false},
		{"weekly", Schedule{Type: ScheduleWeekly, Value: "0,2,4", Time: "09:00"}, false},
		{"weekly bad day", Schedule{Type: ScheduleWeekly, Value: "7", Time: "09:00"}, true},
		{"weekly not a number", Schedule{Type: ScheduleWeekly, Value: "mon", Time: "09:00"}, true},
		{"hourly", Schedule{Type: ScheduleHourly, Value: "3"}, false},
		{"hourly not a number", Schedule{Type: ScheduleHourly, Value: "three"}, true},
		{"cron", Schedule{Type: ScheduleCron, Value: "*/5 * * * *"}, false},
		{"bad hour", Schedule{Type: ScheduleDaily, Time: "25:00"}, true},
		{"bad minute", Schedule{Type: ScheduleDaily, Time: "09:61"}, true},
		{"not a clock", Schedule{Type: ScheduleDaily, Time: "morning"}, true},
		{"unknown type", Schedule{Type: "fortnightly"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schedule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduleNextRun(t *testing.T) {
	// A Wednesday.
	now := time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule Schedule
		want     time.Time
	}{
		{
			"daily later today",
			Schedule{Type: ScheduleDaily, Time: "15:30"},
			time.Date(2026, 1, 7, 15, 30, 0, 0, time.UTC),
		},
		{
			"daily already passed rolls to tomorrow",
			Schedule{Type: ScheduleDaily, Time: "09:00"},
			time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC),
		},
		{
			"daily exactly now rolls to tomorrow",
			Schedule{Type: ScheduleDaily, Time: "10:00"},
			time.Date(2026, 1, 8, 10, 0, 0, 0, time.UTC),
		},
		{
			"daily without time",
			Schedule{Type: ScheduleDaily},
			now.Add(24 * time.Hour),
		},
		{
			"weekly same day later time",
			Schedule{Type: ScheduleWeekly, Value: "2", Time: "15:00"},
			time.Date(2026, 1, 7, 15, 0, 0, 0, time.UTC),
		},
		{
			"weekly same day passed rolls to next listed day",
			Schedule{Type: ScheduleWeekly, Value: "0,2", Time: "09:00"},
			time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC),
		},
		{
			"weekly sunday",
			Schedule{Type: ScheduleWeekly, Value: "6", Time: "08:00"},
			time.Date(2026, 1, 11, 8, 0, 0, 0, time.UTC),
		},
		{
			"hourly",
			Schedule{Type: ScheduleHourly, Value: "3"},
			now.Add(3 * time.Hour),
		},
		{
			"hourly default interval",
			Schedule{Type: ScheduleHourly},
			now.Add(time.Hour),
		},
		{
			"cron falls back a day",
			Schedule{Type: ScheduleCron, Value: "*/5 * * * *"},
			now.Add(24 * time.Hour),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.schedule.NextRun(now)
			if !got.Equal(tt.want) {
				t.Errorf("NextRun = %v, want %v", got, tt.want)
			}
			if !got.After(now) {
				t.Errorf("NextRun = %v is not strictly after now %v", got, now)
			}
		})
	}
}

func TestScheduleNextRunWeeklyFromUnlistedDay(t *testing.T) {
	// Thursday; Mon and Wed are listed, so the next candidate is Monday.
	now := time.Date(2026, 1, 8, 10, 0, 0, 0, time.UTC)
	s := Schedule{Type: ScheduleWeekly, Value: "0,2", Time: "09:00"}

	got := s.NextRun(now)
	want := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v", got, want)
	}
}

func TestScheduleHuman(t *testing.T) {
	tests := []struct {
		schedule Schedule
		want     string
	}{
		{Schedule{Type: ScheduleDaily, Time: "09:00"}, "Every day at 09:00"},
		{Schedule{Type: ScheduleDaily}, "Every day at 00:00"},
		{Schedule{Type: ScheduleWeekly, Value: "0,2", Time: "09:00"}, "Weekly on Mon, Wed at 09:00"},
		{Schedule{Type: ScheduleWeekly}, "Weekly"},
		{Schedule{Type: ScheduleHourly, Value: "6"}, "Every 6 hours"},
		{Schedule{Type: ScheduleHourly, Value: "1"}, "Every hour"},
		{Schedule{Type: ScheduleHourly}, "Every hour"},
		{Schedule{Type: ScheduleCron, Value: "*/5 * * * *"}, "Cron: */5 * * * *"},
	}
	for _, tt := range tests {
		if got := tt.schedule.Human(); got != tt.want {
			t.Errorf("Human(%+v) = %q, want %q", tt.schedule, got, tt.want)
		}
	}
}

func TestMondayIndexed(t *testing.T) {
	tests := []struct {
		day  time.Weekday
		want int
	}{
		{time.Monday, 0},
		{time.Wednesday, 2},
		{time.Saturday, 5},
		{time.Sunday, 6},
	}
	for _, tt := range tests {
		if got := mondayIndexed(tt.day); got != tt.want {
			t.Errorf("mondayIndexed(%s) = %d, want %d", tt.day, got, tt.want)
		}
	}
}
