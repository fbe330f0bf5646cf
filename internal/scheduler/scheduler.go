package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNoJob — Scheduler создан без Job.
var ErrNoJob = errors.New("scheduler has no job")

// Job — одно срабатывание расписания. due — плановое время запуска.
type Job func(ctx context.Context, due time.Time) error

// Config — конфигурация Scheduler.
type Config struct {
	// CronExpr — расписание (5 полей или @every/@hourly).
	CronExpr string

	// Location — timezone расписания. Nil — UTC.
	Location *time.Location

	// Job — выполняемая работа.
	Job Job

	// MaxRuns — остановиться после стольких запусков. 0 — без ограничения.
	MaxRuns int

	Logger *slog.Logger

	// now и after подменяются в тестах.
	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// Scheduler последовательно выполняет Job по расписанию.
type Scheduler struct {
	config Config
	logger *slog.Logger

	runs     int
	failures int
}

// New валидирует расписание и создаёт Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if err := ValidateCronExpr(cfg.CronExpr); err != nil {
		return nil, err
	}
	if cfg.Job == nil {
		return nil, ErrNoJob
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.after == nil {
		cfg.after = time.After
	}

	return &Scheduler{
		config: cfg,
		logger: cfg.Logger.With("component", "scheduler", "cron", cfg.CronExpr),
	}, nil
}

// Run ждёт очередного срабатывания и выполняет Job, пока не отменён ctx
// или не достигнут MaxRuns.
//
// Ошибка Job логируется и не останавливает расписание.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "max_runs", s.config.MaxRuns)

	for s.config.MaxRuns == 0 || s.runs < s.config.MaxRuns {
		due, err := NextDue(s.config.CronExpr, s.config.Location, s.config.now())
		if err != nil {
			return err
		}

		wait := due.Sub(s.config.now())
		s.logger.Debug("waiting for next run", "next_due", due, "wait", wait)

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", "runs", s.runs, "failures", s.failures)
			return ctx.Err()
		case <-s.config.after(max(wait, 0)):
		}

		s.tick(ctx, due)
	}

	s.logger.Info("scheduler finished", "runs", s.runs, "failures", s.failures)
	return nil
}

// tick выполняет одно срабатывание.
func (s *Scheduler) tick(ctx context.Context, due time.Time) {
	started := s.config.now()
	s.runs++

	if err := s.config.Job(ctx, due); err != nil {
		s.failures++
		s.logger.Error("scheduled run failed",
			"due", due,
			"run", s.runs,
			"error", err,
		)
		return
	}

	s.logger.Info("scheduled run completed",
		"due", due,
		"run", s.runs,
		"duration", s.config.now().Sub(started),
	)
}

// Runs возвращает число выполненных запусков.
func (s *Scheduler) Runs() int {
	return s.runs
}

// Failures возвращает число запусков, завершившихся ошибкой.
func (s *Scheduler) Failures() int {
	return s.failures
}
