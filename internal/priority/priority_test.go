package priority_test

import (
	"testing"
	"time"

	"taskrank/internal/domain"
	"taskrank/internal/priority"
)

var now = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func days(n int) time.Time { return now.Add(time.Duration(n) * 24 * time.Hour) }

func TestScoreReferenceCases(t *testing.T) {
	tests := []struct {
		name     string
		in       priority.Input
		priority domain.Priority
		score    int
	}{
		{"due today long", priority.Input{DueDate: days(0), Effort: domain.EffortLong}, domain.PriorityHigh, 10},
		{"two days medium", priority.Input{DueDate: days(2), Effort: domain.EffortMedium}, domain.PriorityHigh, 7},
		{"ten days short", priority.Input{DueDate: days(10), Effort: domain.EffortShort}, domain.PriorityLow, 1},
		{"two days short", priority.Input{DueDate: days(2), Effort: domain.EffortShort}, domain.PriorityMedium, 4},
		{"ten days long", priority.Input{DueDate: days(10), Effort: domain.EffortLong}, domain.PriorityHigh, 7},
		{"ten days medium", priority.Input{DueDate: days(10), Effort: domain.EffortMedium}, domain.PriorityMedium, 4},
		{"tomorrow short", priority.Input{DueDate: days(1), Effort: domain.EffortShort}, domain.PriorityHigh, 8},
		{"overdue medium", priority.Input{DueDate: days(-5), Effort: domain.EffortMedium}, domain.PriorityHigh, 10},
		{"three days medium", priority.Input{DueDate: days(3), Effort: domain.EffortMedium}, domain.PriorityHigh, 7},
		{"four days short", priority.Input{DueDate: days(4), Effort: domain.EffortShort}, domain.PriorityLow, 1},
		{"unknown effort", priority.Input{DueDate: days(10), Effort: domain.Effort("HUGE")}, domain.PriorityLow, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := priority.Score(tt.in, now)
			if got.Priority != tt.priority || got.Score != tt.score {
				t.Fatalf("Score() = %s/%d, want %s/%d", got.Priority, got.Score, tt.priority, tt.score)
			}
		})
	}
}

func TestCompletedAlwaysLow(t *testing.T) {
	for _, effort := range []domain.Effort{domain.EffortShort, domain.EffortMedium, domain.EffortLong, "bogus"} {
		for _, d := range []int{-30, -1, 0, 1, 2, 3, 4, 100} {
			got := priority.Score(priority.Input{DueDate: days(d), Effort: effort, Status: domain.StatusCompleted}, now)
			if got.Priority != domain.PriorityLow || got.Score != 1 {
				t.Fatalf("effort=%s days=%d: got %s/%d, want LOW/1", effort, d, got.Priority, got.Score)
			}
		}
	}
}

func TestScoreWithinBounds(t *testing.T) {
	efforts := []domain.Effort{domain.EffortShort, domain.EffortMedium, domain.EffortLong, ""}
	for _, effort := range efforts {
		for h := -24 * 40; h <= 24*40; h += 7 {
			got := priority.Score(priority.Input{DueDate: now.Add(time.Duration(h) * time.Hour), Effort: effort, Status: domain.StatusPending}, now)
			if got.Score < priority.MinScore || got.Score > priority.MaxScore {
				t.Fatalf("effort=%s hours=%d: score %d out of range", effort, h, got.Score)
			}
		}
	}
}

func TestDaysUntilRoundsDown(t *testing.T) {
	tests := []struct {
		due  time.Time
		want int
	}{
		{now.Add(47 * time.Hour), 1},
		{now.Add(48 * time.Hour), 2},
		{now.Add(-time.Hour), -1},
		{now, 0},
	}
	for _, tt := range tests {
		if got := priority.DaysUntil(tt.due, now); got != tt.want {
			t.Errorf("DaysUntil(%s) = %d, want %d", tt.due, got, tt.want)
		}
	}
}

func TestCustomThresholds(t *testing.T) {
	cfg := priority.DefaultConfig()
	cfg.HighWithinDays = 0
	cfg.MediumWithinDays = 7
	s := priority.New(cfg)
	got := s.Score(priority.Input{DueDate: days(1), Effort: domain.EffortShort}, now)
	if got.Priority != domain.PriorityMedium || got.Score != 4 {
		t.Fatalf("got %s/%d, want MEDIUM/4", got.Priority, got.Score)
	}
}
