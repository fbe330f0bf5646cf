package domain

// RunStatus — статус выполнения pipeline run.
//
// Жизненный цикл:
//
//	RUNNING → SUCCEEDED
//	        ↘ FAILED (fail-fast прервал выполнение)
//	        ↘ PARTIAL (continue-on-error, часть шагов упала)
type RunStatus string

const (
	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все шаги выполнены без ошибок.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — run прерван (fail-fast).
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusPartial — run дошёл до конца, но часть шагов упала или пропущена.
	RunStatusPartial RunStatus = "PARTIAL"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusPartial:
		return true
	default:
		return false
	}
}

// StepStatus — итог выполнения одного шага pipeline.
type StepStatus string

const (
	// StepStatusSucceeded — шаг выполнен, output сохранён.
	StepStatusSucceeded StepStatus = "SUCCEEDED"

	// StepStatusFailed — шаг упал, сохранён output с ключом "error".
	StepStatusFailed StepStatus = "FAILED"

	// StepStatusSkipped — для роли шага нет воркера, output не сохранён.
	StepStatusSkipped StepStatus = "SKIPPED"
)
