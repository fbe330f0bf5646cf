package worker

import (
	"context"
	"fmt"

	"github.com/SIslamMun/AgentFactory/internal/domain"
)

// Fixed — воркер, который всегда выбирает одно действие.
//
// Параметры действия: Defaults, поверх них данные наблюдения.
type Fixed struct {
	Action   string
	Defaults map[string]any
}

// NewFixed создаёт Fixed для действия.
func NewFixed(action string, defaults map[string]any) *Fixed {
	return &Fixed{Action: action, Defaults: defaults}
}

func (f *Fixed) Think(_ context.Context, obs domain.Observation) (string, error) {
	return fmt.Sprintf("fixed action %s for: %s", f.Action, obs.Text), nil
}

func (f *Fixed) Act(_ context.Context, obs domain.Observation) (domain.Action, error) {
	return domain.Action{Name: f.Action, Params: mergeParams(f.Defaults, obs.Data)}, nil
}

// mergeParams копирует base и накладывает поверх overlay.
func mergeParams(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
