package engine

import "errors"

// Ошибки структуры pipeline.
var (
	// ErrEmptyStepName — шаг не имеет имени.
	ErrEmptyStepName = errors.New("step has empty name")

	// ErrDuplicateStep — несколько шагов с одинаковым именем.
	ErrDuplicateStep = errors.New("duplicate step name")

	// ErrMissingDependency — шаг зависит от несуществующего шага.
	ErrMissingDependency = errors.New("step depends on unknown step")

	// ErrUnknownRole — шаг ссылается на неизвестную роль воркера.
	ErrUnknownRole = errors.New("unknown worker role")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cycle detected in pipeline")
)

// Ошибки выполнения pipeline.
var (
	// ErrMissingWorker — для роли шага не зарегистрирован воркер.
	ErrMissingWorker = errors.New("no worker registered for role")

	// ErrStepFailed — шаг завершился ошибкой в режиме fail-fast.
	ErrStepFailed = errors.New("step failed")
)

// Ошибки разбора pipeline-файла.
var (
	// ErrPipelineParse — файл pipeline не удалось разобрать.
	ErrPipelineParse = errors.New("pipeline parse failed")
)

// PipelineError — ошибка pipeline с контекстом.
//
// Всегда называет шаг, если ошибка к нему относится.
type PipelineError struct {
	Step    string // имя шага, где произошла ошибка
	Message string // описание ошибки
	Err     error  // базовая ошибка (одна из Err* выше или причина падения шага)
}

// Error реализует интерфейс error.
func (e *PipelineError) Error() string {
	if e.Step != "" {
		return "pipeline step " + e.Step + ": " + e.Message
	}
	return "pipeline: " + e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError создаёт новую ошибку pipeline.
func NewPipelineError(step, message string, err error) *PipelineError {
	return &PipelineError{
		Step:    step,
		Message: message,
		Err:     err,
	}
}
