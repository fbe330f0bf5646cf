package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock сдвигает время при каждом ожидании.
type fakeClock struct {
	now   time.Time
	waits []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func TestValidateCronExpr(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"0 3 * * 1-5", false},
		{"@every 10m", false},
		{"@hourly", false},
		{"* * *", true},
		{"61 * * * *", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCronExpr(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCronExpr(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestNextDue(t *testing.T) {
	from := time.Date(2026, 3, 1, 10, 7, 30, 0, time.UTC)

	next, err := NextDue("*/15 * * * *", nil, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}

	// 12:00 в UTC+3 — это 09:00 UTC
	loc := time.FixedZone("MSK", 3*3600)
	next, err = NextDue("0 12 * * *", loc, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
	if next.Location() != time.UTC {
		t.Error("result should be in UTC")
	}

	if _, err := NextDue("bad", nil, from); err == nil {
		t.Error("expected error for bad expression")
	}
}

func TestLoadLocation(t *testing.T) {
	if LoadLocation("") != time.UTC {
		t.Error("empty name should be UTC")
	}
	if LoadLocation("Not/AZone") != time.UTC {
		t.Error("invalid name should fall back to UTC")
	}
}

func TestNew_Validation(t *testing.T) {
	job := func(context.Context, time.Time) error { return nil }

	if _, err := New(Config{CronExpr: "nope", Job: job}); err == nil {
		t.Error("expected cron validation error")
	}
	if _, err := New(Config{CronExpr: "@every 1m"}); !errors.Is(err, ErrNoJob) {
		t.Errorf("expected ErrNoJob, got %v", err)
	}
}

func TestScheduler_RunsSequentially(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}

	var dues []time.Time
	running := false
	job := func(_ context.Context, due time.Time) error {
		if running {
			t.Error("job started while previous run in progress")
		}
		running = true
		defer func() { running = false }()

		dues = append(dues, due)
		// долгий прогон: 90 секунд при расписании раз в минуту
		clock.now = clock.now.Add(90 * time.Second)
		if len(dues) == 2 {
			return errors.New("bridge down")
		}
		return nil
	}

	s, err := New(Config{CronExpr: "@every 1m", Job: job, MaxRuns: 3})
	if err != nil {
		t.Fatal(err)
	}
	s.config.now = clock.Now
	s.config.after = clock.After

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Runs() != 3 || s.Failures() != 1 {
		t.Errorf("expected 3 runs / 1 failure, got %d / %d", s.Runs(), s.Failures())
	}

	// следующее время считается от завершения прогона
	for i := 1; i < len(dues); i++ {
		if gap := dues[i].Sub(dues[i-1]); gap != 150*time.Second {
			t.Errorf("run %d: expected 150s gap, got %v", i, gap)
		}
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	s, err := New(Config{
		CronExpr: "@every 1h",
		Job:      func(context.Context, time.Time) error { return nil },
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if s.Runs() != 0 {
		t.Errorf("no run expected, got %d", s.Runs())
	}
}
