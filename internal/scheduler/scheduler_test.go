package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestNextMidnight(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "middle of day",
			now:  time.Date(2024, time.May, 10, 13, 45, 0, 0, time.UTC),
			want: time.Date(2024, time.May, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly midnight is not strictly after",
			now:  time.Date(2024, time.May, 10, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.May, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "one nanosecond before midnight",
			now:  time.Date(2024, time.May, 10, 23, 59, 59, 999999999, time.UTC),
			want: time.Date(2024, time.May, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "end of year",
			now:  time.Date(2024, time.December, 31, 18, 0, 0, 0, time.UTC),
			want: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "leap day",
			now:  time.Date(2024, time.February, 28, 6, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "non-UTC input uses the UTC calendar",
			now:  time.Date(2024, time.May, 10, 22, 0, 0, 0, time.FixedZone("UTC-5", -5*60*60)),
			want: time.Date(2024, time.May, 12, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextMidnight(tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("NextMidnight(%s) = %s, want %s", tt.now, got, tt.want)
			}
			if d := UntilNextMidnight(tt.now); d <= 0 || d > 24*time.Hour {
				t.Errorf("UntilNextMidnight(%s) = %s, want within (0, 24h]", tt.now, d)
			}
		})
	}
}

func TestMidnightStartRunStop(t *testing.T) {
	m := New(nil)

	cleared := make(chan struct{}, 1)
	if err := m.Start(func() { cleared <- struct{}{} }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Stop()

	if n := m.scheduler.Len(); n != 1 {
		t.Fatalf("expected 1 scheduled job, got %d", n)
	}

	if err := m.Start(func() {}); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	m.RunNow()

	select {
	case <-cleared:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected clear to run after RunNow")
	}

	m.Stop()
	m.Stop()
}
