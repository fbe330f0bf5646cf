package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SIslamMun/AgentFactory/internal/domain"
)

// Node — узел в DAG.
type Node struct {
	// Step — определение шага из PipelineSpec.
	Step *domain.PipelineStep

	// Name — имя шага.
	Name string

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// DAG — направленный ациклический граф шагов pipeline.
//
// Строится один раз через BuildDAG; порядок выполнения вычисляется
// при построении и больше не пересчитывается.
type DAG struct {
	spec  domain.PipelineSpec
	nodes map[string]*Node
	roots []*Node
	order []*Node
}

// BuildDAG валидирует spec и строит DAG.
//
// Порядок проверок:
//   - имена шагов непустые и уникальные
//   - все depends_on ссылаются на существующие шаги
//   - роли шагов входят в knownRoles (если knownRoles не пуст)
//   - граф ацикличен (алгоритм Кана)
//
// Все ошибки возвращаются как *PipelineError.
func BuildDAG(spec *domain.PipelineSpec, knownRoles []string) (*DAG, error) {
	if spec == nil {
		spec = &domain.PipelineSpec{}
	}

	dag := &DAG{
		spec:  cloneSpec(spec),
		nodes: make(map[string]*Node, len(spec.Steps)),
	}

	// Первый проход: создаём все узлы
	for i := range dag.spec.Steps {
		if err := dag.addNode(&dag.spec.Steps[i]); err != nil {
			return nil, err
		}
	}

	// Второй проход: связываем узлы по зависимостям
	for i := range dag.spec.Steps {
		if err := dag.linkDependencies(&dag.spec.Steps[i]); err != nil {
			return nil, err
		}
	}

	if err := dag.checkRoles(knownRoles); err != nil {
		return nil, err
	}

	dag.findRootNodes()

	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.order = order

	return dag, nil
}

// addNode добавляет узел в DAG.
func (d *DAG) addNode(step *domain.PipelineStep) error {
	if step.Name == "" {
		return NewPipelineError("", "step has empty name", ErrEmptyStepName)
	}
	if _, exists := d.nodes[step.Name]; exists {
		return NewPipelineError(step.Name,
			fmt.Sprintf("duplicate step name %q", step.Name), ErrDuplicateStep)
	}

	d.nodes[step.Name] = &Node{
		Step:       step,
		Name:       step.Name,
		DependsOn:  make([]*Node, 0, len(step.DependsOn)),
		Dependents: make([]*Node, 0),
	}
	return nil
}

// linkDependencies связывает узел с его зависимостями.
func (d *DAG) linkDependencies(step *domain.PipelineStep) error {
	node := d.nodes[step.Name]

	for _, depName := range step.DependsOn {
		depNode, exists := d.nodes[depName]
		if !exists {
			return NewPipelineError(step.Name,
				fmt.Sprintf("depends on unknown step %q", depName), ErrMissingDependency)
		}
		d.addEdge(depNode, node)
	}

	return nil
}

// checkRoles проверяет роли шагов. Пустой набор ролей отключает проверку.
func (d *DAG) checkRoles(knownRoles []string) error {
	if len(knownRoles) == 0 {
		return nil
	}

	known := make(map[string]bool, len(knownRoles))
	for _, r := range knownRoles {
		known[r] = true
	}

	for i := range d.spec.Steps {
		step := &d.spec.Steps[i]
		if known[step.Role] {
			continue
		}
		sorted := append([]string(nil), knownRoles...)
		sort.Strings(sorted)
		return NewPipelineError(step.Name,
			fmt.Sprintf("references unknown worker role %q (known roles: %s)",
				step.Role, strings.Join(sorted, ", ")),
			ErrUnknownRole)
	}
	return nil
}

// addEdge добавляет ребро между узлами.
// Дополнительно проверяет на дубликаты, чтобы избежать двойного учета InDegree.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.Name == from.Name {
			return // уже связаны
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// findRootNodes находит узлы без входящих рёбер в порядке объявления.
func (d *DAG) findRootNodes() {
	d.roots = make([]*Node, 0)
	for i := range d.spec.Steps {
		node := d.nodes[d.spec.Steps[i].Name]
		if node.InDegree == 0 {
			d.roots = append(d.roots, node)
		}
	}
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
//
// Очередь FIFO, засеянная корнями в порядке объявления: при одинаковом
// входе порядок всегда одинаковый.
func (d *DAG) topologicalSort() ([]*Node, error) {
	// Копируем inDegree, чтобы не модифицировать узлы
	inDegree := make(map[string]int, len(d.nodes))
	for name, node := range d.nodes {
		inDegree[name] = node.InDegree
	}

	queue := make([]*Node, len(d.roots))
	copy(queue, d.roots)

	order := make([]*Node, 0, len(d.nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.Name]--
			if inDegree[dependent.Name] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(d.nodes) {
		stuck := make([]string, 0, len(d.nodes)-len(order))
		for i := range d.spec.Steps {
			if name := d.spec.Steps[i].Name; inDegree[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return nil, NewPipelineError("",
			"cycle detected, steps cannot be topologically sorted: "+strings.Join(stuck, ", "),
			ErrCyclicDependency)
	}

	return order, nil
}

// Order возвращает шаги в порядке выполнения.
func (d *DAG) Order() []domain.PipelineStep {
	steps := make([]domain.PipelineStep, len(d.order))
	for i, node := range d.order {
		steps[i] = *node.Step
	}
	return steps
}

// Spec возвращает исходную спецификацию pipeline.
func (d *DAG) Spec() domain.PipelineSpec {
	return cloneSpec(&d.spec)
}

// Roots возвращает узлы без зависимостей в порядке объявления.
func (d *DAG) Roots() []*Node {
	return append([]*Node(nil), d.roots...)
}

// Node возвращает узел по имени шага.
func (d *DAG) Node(name string) *Node {
	return d.nodes[name]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.nodes)
}

// Roles возвращает множество ролей, используемых шагами.
func (d *DAG) Roles() []string {
	seen := make(map[string]bool)
	roles := make([]string, 0)
	for i := range d.spec.Steps {
		role := d.spec.Steps[i].Role
		if !seen[role] {
			seen[role] = true
			roles = append(roles, role)
		}
	}
	return roles
}

// cloneSpec копирует spec, чтобы DAG не зависел от изменений вызывающего.
func cloneSpec(spec *domain.PipelineSpec) domain.PipelineSpec {
	out := domain.PipelineSpec{
		ID:          spec.ID,
		Description: spec.Description,
		Steps:       make([]domain.PipelineStep, len(spec.Steps)),
	}
	for i, s := range spec.Steps {
		inputs := make(map[string]any, len(s.Inputs))
		for k, v := range s.Inputs {
			inputs[k] = v
		}
		out.Steps[i] = domain.PipelineStep{
			Name:      s.Name,
			Role:      s.Role,
			Inputs:    inputs,
			Outputs:   append([]string(nil), s.Outputs...),
			DependsOn: append([]string(nil), s.DependsOn...),
		}
	}
	return out
}
