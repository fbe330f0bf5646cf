package domain

// PipelineSpec — спецификация pipeline в том виде, в каком её написал автор.
//
// Порядок Steps значим: он определяет tie-break при топологической
// сортировке (шаги, готовые одновременно, идут в порядке объявления).
type PipelineSpec struct {
	// ID — идентификатор pipeline (pipeline_id в YAML).
	ID string `json:"pipeline_id" yaml:"pipeline_id"`

	// Description — описание назначения pipeline.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Steps — шаги pipeline.
	Steps []PipelineStep `json:"steps" yaml:"steps"`
}

// PipelineStep — один шаг pipeline.
type PipelineStep struct {
	// Name — уникальное имя шага в рамках pipeline.
	// Используется в depends_on и в ссылках ${name.key}.
	Name string `json:"name" yaml:"name"`

	// Role — роль воркера, который выполняет шаг (agent в YAML).
	Role string `json:"agent" yaml:"agent"`

	// Inputs — шаблон входных данных. Строковые значения могут содержать
	// ссылки ${scope.key}.
	Inputs map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Outputs — ключи, которые шаг публикует для следующих шагов.
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// DependsOn — имена шагов, которые должны выполниться раньше.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// StepOutput — результат выполнения шага pipeline.
//
// Сохраняется в контекст сразу после выполнения шага и больше не меняется.
type StepOutput struct {
	StepName    string         `json:"step_name"`
	Observation Observation    `json:"observation"`
	Data        map[string]any `json:"data"`
}
