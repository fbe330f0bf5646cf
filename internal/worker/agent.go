package worker

import (
	"context"
	"fmt"
	"sort"

	"github.com/SIslamMun/AgentFactory/internal/domain"
)

// Agent — контракт воркера: сначала рассуждение, потом действие.
//
// Реализации взаимозаменяемы: оркестратор не знает, что за ними стоит
// (правила, LLM, фиксированное действие).
type Agent interface {
	// Think возвращает трассу рассуждения по наблюдению.
	Think(ctx context.Context, obs domain.Observation) (string, error)

	// Act выбирает действие для окружения.
	Act(ctx context.Context, obs domain.Observation) (domain.Action, error)
}

// Registry — реестр воркеров по роли.
type Registry struct {
	agents map[string]Agent
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register добавляет воркер для роли. Повторная регистрация заменяет воркер.
func (r *Registry) Register(role string, agent Agent) error {
	if role == "" {
		return ErrEmptyRole
	}
	r.agents[role] = agent
	return nil
}

// Get возвращает воркер для роли.
func (r *Registry) Get(role string) (Agent, error) {
	agent, ok := r.agents[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	return agent, nil
}

// Roles возвращает зарегистрированные роли в алфавитном порядке.
func (r *Registry) Roles() []string {
	roles := make([]string, 0, len(r.agents))
	for role := range r.agents {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Len возвращает количество зарегистрированных ролей.
func (r *Registry) Len() int {
	return len(r.agents)
}
