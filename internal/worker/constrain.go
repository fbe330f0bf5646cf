package worker

import (
	"context"
	"log/slog"

	"github.com/SIslamMun/AgentFactory/internal/domain"
)

// Constrain ограничивает backend-агента набором разрешённых действий.
//
// Разрешённое действие дополняется Defaults (без перезаписи). Любое
// другое заменяется на Fallback с параметрами из данных наблюдения.
type Constrain struct {
	Backend  Agent
	Allowed  []string
	Fallback string
	Defaults map[string]any

	// Preamble добавляется перед текстом наблюдения для backend'а.
	Preamble string

	Logger *slog.Logger
}

// Ingestor ограничивает backend действием assimilate.
func Ingestor(backend Agent, defaultTag, defaultFormat string) *Constrain {
	return &Constrain{
		Backend:  backend,
		Allowed:  []string{"assimilate"},
		Fallback: "assimilate",
		Defaults: map[string]any{"dst": defaultTag, "format": defaultFormat},
		Preamble: "Only allowed action: assimilate. Extract src, dst and format.\n\n",
	}
}

// Retriever ограничивает backend действиями чтения, по умолчанию query.
func Retriever(backend Agent) *Constrain {
	return &Constrain{
		Backend:  backend,
		Allowed:  []string{"query", "retrieve", "list_blobs"},
		Fallback: "query",
		Defaults: map[string]any{"tag_pattern": "*"},
		Preamble: "Allowed actions: query, retrieve, list_blobs.\n\n",
	}
}

func (c *Constrain) augment(obs domain.Observation) domain.Observation {
	if c.Preamble == "" {
		return obs
	}
	return domain.Observation{Text: c.Preamble + obs.Text, Data: obs.Data, Done: obs.Done}
}

func (c *Constrain) Think(ctx context.Context, obs domain.Observation) (string, error) {
	if c.Backend == nil {
		return "", ErrNoBackend
	}
	return c.Backend.Think(ctx, c.augment(obs))
}

func (c *Constrain) Act(ctx context.Context, obs domain.Observation) (domain.Action, error) {
	if c.Backend == nil {
		return domain.Action{}, ErrNoBackend
	}

	action, err := c.Backend.Act(ctx, c.augment(obs))
	if err != nil {
		return domain.Action{}, err
	}

	if c.allowed(action.Name) {
		return domain.Action{Name: action.Name, Params: mergeParams(c.Defaults, action.Params)}, nil
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("backend action not allowed, overriding",
		"action", action.Name,
		"fallback", c.Fallback,
	)
	return domain.Action{Name: c.Fallback, Params: mergeParams(c.Defaults, obs.Data)}, nil
}

func (c *Constrain) allowed(name string) bool {
	for _, a := range c.Allowed {
		if a == name {
			return true
		}
	}
	return false
}
