package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/SIslamMun/AgentFactory/internal/domain"
)

// DefaultPipelineID — id pipeline, если pipeline_id не указан.
const DefaultPipelineID = "unnamed"

// pipelineFile — формат pipeline-файла на диске.
type pipelineFile struct {
	ID          string     `yaml:"pipeline_id"`
	Description string     `yaml:"description"`
	Steps       []stepFile `yaml:"steps"`
}

// stepFile — шаг в pipeline-файле. Роль задаётся через agent или agent_role.
type stepFile struct {
	Name      string         `yaml:"name"`
	Agent     string         `yaml:"agent"`
	AgentRole string         `yaml:"agent_role"`
	Inputs    map[string]any `yaml:"inputs"`
	Outputs   []string       `yaml:"outputs"`
	DependsOn []string       `yaml:"depends_on"`
}

// ParsePipeline разбирает pipeline из YAML (JSON тоже подходит).
//
// Структуру графа не проверяет: это делает BuildDAG.
func ParsePipeline(data []byte) (*domain.PipelineSpec, error) {
	var raw pipelineFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, NewPipelineError("", fmt.Sprintf("invalid pipeline document: %v", err), ErrPipelineParse)
	}

	spec := &domain.PipelineSpec{
		ID:          raw.ID,
		Description: raw.Description,
		Steps:       make([]domain.PipelineStep, 0, len(raw.Steps)),
	}
	if spec.ID == "" {
		spec.ID = DefaultPipelineID
	}

	for i, s := range raw.Steps {
		role := s.Agent
		if role == "" {
			role = s.AgentRole
		}
		if role == "" {
			return nil, NewPipelineError(s.Name,
				fmt.Sprintf("step %d has no agent role", i), ErrPipelineParse)
		}

		inputs := s.Inputs
		if inputs == nil {
			inputs = make(map[string]any)
		}

		spec.Steps = append(spec.Steps, domain.PipelineStep{
			Name:      s.Name,
			Role:      role,
			Inputs:    inputs,
			Outputs:   s.Outputs,
			DependsOn: s.DependsOn,
		})
	}

	return spec, nil
}

// LoadPipeline читает и разбирает pipeline-файл.
func LoadPipeline(path string) (*domain.PipelineSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline %s: %w", path, err)
	}
	return ParsePipeline(data)
}
