package orchestrator

import (
	"github.com/google/uuid"

	"github.com/SIslamMun/AgentFactory/internal/domain"
	"github.com/SIslamMun/AgentFactory/internal/engine"
)

// RunState — состояние одного выполнения pipeline.
//
// Outputs хранятся в порядке завершения шагов. Output шага пишется один раз
// и дальше не меняется.
type RunState struct {
	// Run — метаданные run.
	Run *domain.Run

	vars      *engine.Variables
	outputs   []*domain.StepOutput
	byName    map[string]*domain.StepOutput
	failed    []string
	failedSet map[string]bool
	skipped   []string
}

// NewRunState создаёт состояние с начальными переменными pipeline.
func NewRunState(run *domain.Run, vars map[string]any) *RunState {
	return &RunState{
		Run:       run,
		vars:      engine.NewVariables(vars),
		byName:    make(map[string]*domain.StepOutput),
		failedSet: make(map[string]bool),
	}
}

// RunID возвращает ID run.
func (s *RunState) RunID() uuid.UUID {
	return s.Run.ID
}

// Status возвращает статус run.
func (s *RunState) Status() domain.RunStatus {
	return s.Run.Status
}

// Output возвращает output шага по имени.
func (s *RunState) Output(name string) (*domain.StepOutput, bool) {
	out, ok := s.byName[name]
	return out, ok
}

// Outputs возвращает outputs в порядке завершения шагов.
func (s *RunState) Outputs() []*domain.StepOutput {
	return append([]*domain.StepOutput(nil), s.outputs...)
}

// Variables возвращает контекст переменных run.
func (s *RunState) Variables() *engine.Variables {
	return s.vars
}

// Failed возвращает шаги, упавшие в режиме continue-on-error.
func (s *RunState) Failed() []string {
	return append([]string(nil), s.failed...)
}

// Skipped возвращает шаги, пропущенные из-за отсутствия воркера.
func (s *RunState) Skipped() []string {
	return append([]string(nil), s.skipped...)
}

// StepFailed сообщает, записан ли output шага за ошибку.
func (s *RunState) StepFailed(name string) bool {
	return s.failedSet[name]
}

// store сохраняет output. failed отмечает шаг, упавший в continue-on-error,
// независимо от ключей в его данных.
func (s *RunState) store(out *domain.StepOutput, failed bool) {
	s.outputs = append(s.outputs, out)
	s.byName[out.StepName] = out
	s.vars.Store(out)
	if failed {
		s.failed = append(s.failed, out.StepName)
		s.failedSet[out.StepName] = true
	}
}

func (s *RunState) markSkipped(step string) {
	s.skipped = append(s.skipped, step)
}
