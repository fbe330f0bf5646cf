package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/SIslamMun/AgentFactory/internal/domain"
)

// uniqueViolation — код ошибки Postgres для нарушения уникальности.
const uniqueViolation = "23505"

// RunRepo — история runs и их шагов.
type RunRepo struct {
	db DB
}

// NewRunRepo создаёт RunRepo.
func NewRunRepo(db DB) *RunRepo {
	return &RunRepo{db: db}
}

// CreateRun сохраняет новый run.
func (r *RunRepo) CreateRun(ctx context.Context, run *domain.Run) error {
	varsJSON, err := marshalJSON(run.Vars)
	if err != nil {
		return fmt.Errorf("marshal vars: %w", err)
	}

	query := `
		INSERT INTO pipeline_runs (id, pipeline_id, task, status, vars, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.Exec(ctx, query,
		run.ID,
		run.PipelineID,
		nullString(run.Task),
		run.Status,
		varsJSON,
		run.StartedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: run %s", ErrAlreadyExists, run.ID)
	}
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun записывает финальный статус run.
func (r *RunRepo) FinishRun(ctx context.Context, run *domain.Run) error {
	query := `
		UPDATE pipeline_runs
		SET status = $2, finished_at = $3, error = $4
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		run.ID,
		run.Status,
		run.FinishedAt,
		nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveStep сохраняет запись о шаге. Повторная запись шага перезаписывает её.
func (r *RunRepo) SaveStep(ctx context.Context, rec *domain.StepRecord) error {
	outputJSON, err := marshalJSON(rec.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	query := `
		INSERT INTO pipeline_steps
			(run_id, step_name, role, status, action, reasoning, output, reward, error, duration_ms, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id, step_name) DO UPDATE SET
			status = EXCLUDED.status,
			action = EXCLUDED.action,
			reasoning = EXCLUDED.reasoning,
			output = EXCLUDED.output,
			reward = EXCLUDED.reward,
			error = EXCLUDED.error,
			duration_ms = EXCLUDED.duration_ms,
			finished_at = EXCLUDED.finished_at
	`
	_, err = r.db.Exec(ctx, query,
		rec.RunID,
		rec.StepName,
		rec.Role,
		rec.Status,
		nullString(rec.Action),
		nullString(rec.Reasoning),
		outputJSON,
		rec.Reward,
		nullString(rec.Error),
		rec.Duration.Milliseconds(),
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// GetRun возвращает run по ID.
func (r *RunRepo) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, pipeline_id, task, status, vars, started_at, finished_at, error
		FROM pipeline_runs
		WHERE id = $1
	`
	run, err := scanRun(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// RunFilter — параметры выборки runs.
type RunFilter struct {
	PipelineID string
	Status     domain.RunStatus
	Limit      int
	Offset     int
}

// ListRuns возвращает runs, новые первыми.
func (r *RunRepo) ListRuns(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `
		SELECT id, pipeline_id, task, status, vars, started_at, finished_at, error
		FROM pipeline_runs
		WHERE ($1::text IS NULL OR pipeline_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query,
		nullString(filter.PipelineID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListSteps возвращает шаги run в порядке завершения.
func (r *RunRepo) ListSteps(ctx context.Context, runID uuid.UUID) ([]domain.StepRecord, error) {
	query := `
		SELECT run_id, step_name, role, status, action, reasoning, output, reward, error, duration_ms, finished_at
		FROM pipeline_steps
		WHERE run_id = $1
		ORDER BY finished_at ASC
	`
	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.StepRecord
	for rows.Next() {
		rec, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *rec)
	}
	return steps, rows.Err()
}

// --- Helpers ---

func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		run      domain.Run
		task     *string
		varsJSON []byte
		runError *string
	)

	err := row.Scan(
		&run.ID,
		&run.PipelineID,
		&task,
		&run.Status,
		&varsJSON,
		&run.StartedAt,
		&run.FinishedAt,
		&runError,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if len(varsJSON) > 0 {
		if err := sonic.Unmarshal(varsJSON, &run.Vars); err != nil {
			return nil, fmt.Errorf("unmarshal vars: %w", err)
		}
	}
	run.Task = deref(task)
	run.Error = deref(runError)

	return &run, nil
}

func scanStep(row pgx.Row) (*domain.StepRecord, error) {
	var (
		rec        domain.StepRecord
		action     *string
		reasoning  *string
		outputJSON []byte
		stepError  *string
		durationMS int64
	)

	err := row.Scan(
		&rec.RunID,
		&rec.StepName,
		&rec.Role,
		&rec.Status,
		&action,
		&reasoning,
		&outputJSON,
		&rec.Reward,
		&stepError,
		&durationMS,
		&rec.FinishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan step: %w", err)
	}

	if len(outputJSON) > 0 {
		rec.Output = &domain.StepOutput{}
		if err := sonic.Unmarshal(outputJSON, rec.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output: %w", err)
		}
	}
	rec.Action = deref(action)
	rec.Reasoning = deref(reasoning)
	rec.Error = deref(stepError)
	rec.Duration = time.Duration(durationMS) * time.Millisecond

	return &rec, nil
}

// marshalJSON возвращает nil для пустых значений (NULL в jsonb).
func marshalJSON(v any) ([]byte, error) {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 0 {
			return nil, nil
		}
	case *domain.StepOutput:
		if x == nil {
			return nil, nil
		}
	}
	return sonic.Marshal(v)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// nullString возвращает nil для пустой строки (NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
