package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — один прогон pipeline.
//
// Run создаётся Executor'ом в начале выполнения и финализируется после
// последнего шага (или при fail-fast). Используется для истории прогонов
// (repo.RunRepo) и событий (mq).
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// PipelineID — идентификатор выполняемого pipeline.
	PipelineID string `json:"pipeline_id"`

	// Task — текст задачи, переданный при запуске.
	Task string `json:"task,omitempty"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Vars — переменные pipeline.*, переданные при запуске.
	Vars map[string]any `json:"vars,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения. Nil, если run ещё выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`
}

// NewRun создаёт run в статусе RUNNING.
func NewRun(pipelineID, task string, vars map[string]any) *Run {
	return &Run{
		ID:         uuid.New(),
		PipelineID: pipelineID,
		Task:       task,
		Status:     RunStatusRunning,
		Vars:       vars,
		StartedAt:  time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// Finish переводит run в финальный статус.
func (r *Run) Finish(status RunStatus, errMsg string) {
	now := time.Now()
	r.Status = status
	r.FinishedAt = &now
	r.Error = errMsg
}

// StepRecord — запись о выполнении одного шага run.
//
// Пишется в историю (repo.RunRepo) и публикуется как событие (mq).
type StepRecord struct {
	RunID      uuid.UUID     `json:"run_id"`
	StepName   string        `json:"step_name"`
	Role       string        `json:"role"`
	Status     StepStatus    `json:"status"`
	Action     string        `json:"action,omitempty"`
	Reasoning  string        `json:"reasoning,omitempty"`
	Output     *StepOutput   `json:"output,omitempty"`
	Reward     float64       `json:"reward"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
}
