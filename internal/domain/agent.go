package domain

// TaskSpec — задача, которую получает окружение при Reset.
type TaskSpec struct {
	// ID — идентификатор задачи.
	ID string `json:"id"`

	// Instruction — текст задачи для воркеров.
	Instruction string `json:"instruction"`

	// Metadata — произвольные дополнительные данные.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Observation — то, что окружение показывает воркеру.
type Observation struct {
	// Text — человекочитаемое описание состояния.
	Text string `json:"text"`

	// Data — структурированные данные наблюдения.
	Data map[string]any `json:"data,omitempty"`

	// Done — признак завершения эпизода.
	Done bool `json:"done,omitempty"`
}

// Action — действие, которое воркер хочет выполнить в окружении.
//
// Name — один из глаголов окружения: assimilate, query, retrieve,
// prune, destroy, list_blobs.
type Action struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Param возвращает параметр действия и флаг его наличия.
func (a Action) Param(key string) (any, bool) {
	if a.Params == nil {
		return nil, false
	}
	v, ok := a.Params[key]
	return v, ok
}

// StepResult — результат одного шага окружения.
type StepResult struct {
	Observation Observation    `json:"observation"`
	Reward      float64        `json:"reward"`
	Done        bool           `json:"done,omitempty"`
	Info        map[string]any `json:"info,omitempty"`
}
