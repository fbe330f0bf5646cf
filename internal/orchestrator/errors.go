package orchestrator

import (
	"errors"

	"github.com/SIslamMun/AgentFactory/internal/engine"
)

// Ошибки оркестратора.
var (
	// ErrNilDAG — Execute вызван без DAG.
	ErrNilDAG = errors.New("pipeline DAG is nil")

	// ErrNoEnvironment — не задано окружение.
	ErrNoEnvironment = errors.New("orchestrator has no environment")

	// ErrNoRegistry — не задан реестр воркеров.
	ErrNoRegistry = errors.New("orchestrator has no worker registry")
)

// PipelineError — ошибка выполнения, см. engine.PipelineError.
type PipelineError = engine.PipelineError

// NewPipelineError создаёт ошибку выполнения шага.
func NewPipelineError(step, message string, err error) *PipelineError {
	return engine.NewPipelineError(step, message, err)
}
