package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SIslamMun/AgentFactory/internal/domain"
	"github.com/SIslamMun/AgentFactory/internal/engine"
	"github.com/SIslamMun/AgentFactory/internal/environment"
	"github.com/SIslamMun/AgentFactory/internal/mq"
	"github.com/SIslamMun/AgentFactory/internal/orchestrator"
	"github.com/SIslamMun/AgentFactory/internal/worker"
)

// pipelineFlags — флаги, общие для run и schedule.
type pipelineFlags struct {
	vars            []string
	roles           []string
	task            string
	continueOnError bool
}

func (f *pipelineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.vars, "var", nil, "Pipeline variable KEY=VALUE, comma-separated VALUE becomes a list (repeatable)")
	cmd.Flags().StringArrayVar(&f.roles, "role", nil, "Bind ROLE=ACTION with a fixed worker (repeatable)")
	cmd.Flags().StringVar(&f.task, "task", "", "Task text passed to the environment")
	cmd.Flags().BoolVar(&f.continueOnError, "continue-on-error", false, "Record failed steps and keep going instead of aborting")
}

// pipelineDeps — то, на чём выполняется pipeline.
type pipelineDeps struct {
	Env      orchestrator.Environment
	Registry *worker.Registry
	Recorder orchestrator.Recorder
	Events   orchestrator.Events
	Logger   *slog.Logger
}

// executePipeline строит DAG и выполняет его.
//
// В fail-fast роли проверяются до запуска. В continue-on-error шаги
// без воркера пропускаются во время выполнения.
func executePipeline(ctx context.Context, deps pipelineDeps, spec *domain.PipelineSpec, opts orchestrator.Options) (*orchestrator.RunState, error) {
	var known []string
	if opts.FailFast {
		known = deps.Registry.Roles()
	}

	dag, err := engine.BuildDAG(spec, known)
	if err != nil {
		return nil, err
	}

	o := orchestrator.New(orchestrator.Config{
		Environment: deps.Env,
		Registry:    deps.Registry,
		Recorder:    deps.Recorder,
		Events:      deps.Events,
		Logger:      deps.Logger,
	})
	return o.Execute(ctx, dag, opts)
}

// loadDeps собирает окружение и необязательные sink'и из Runtime.
func loadDeps(ctx context.Context, rt *Runtime, roles []string) (pipelineDeps, error) {
	registry, err := buildRegistry(roles)
	if err != nil {
		return pipelineDeps{}, err
	}

	env, err := rt.Environment(ctx)
	if err != nil {
		return pipelineDeps{}, err
	}

	deps := pipelineDeps{Env: env, Registry: registry, Logger: rt.logger}

	runRepo, err := rt.RunRepo(ctx)
	if err != nil {
		rt.logger.Warn("run history disabled", "error", err)
	} else if runRepo != nil {
		deps.Recorder = runRepo
	}

	conn, err := rt.MQ(ctx)
	if err != nil {
		rt.logger.Warn("event publishing disabled", "error", err)
	} else if conn != nil {
		deps.Events = mq.NewPublisher(conn, rt.logger)
	}

	return deps, nil
}

// defaultRoles — встроенные воркеры по ролям.
func defaultRoles() map[string]worker.Agent {
	return map[string]worker.Agent{
		"ingestor":  worker.Ingestor(worker.NewFixed(environment.ActionAssimilate, nil), "default", environment.DefaultFormat),
		"retriever": worker.Retriever(worker.NewFixed(environment.ActionRetrieve, nil)),
		"querier":   worker.NewFixed(environment.ActionQuery, map[string]any{"tag_pattern": "*"}),
		"lister":    worker.NewFixed(environment.ActionListBlobs, nil),
		"pruner":    worker.NewFixed(environment.ActionPrune, nil),
		"destroyer": worker.NewFixed(environment.ActionDestroy, nil),
	}
}

// buildRegistry регистрирует встроенные роли и переопределения ROLE=ACTION.
func buildRegistry(overrides []string) (*worker.Registry, error) {
	registry := worker.NewRegistry()
	for role, agent := range defaultRoles() {
		if err := registry.Register(role, agent); err != nil {
			return nil, err
		}
	}

	for _, kv := range overrides {
		role, action, ok := strings.Cut(kv, "=")
		if !ok || role == "" || action == "" {
			return nil, fmt.Errorf("invalid role binding %q, expected ROLE=ACTION", kv)
		}
		if err := registry.Register(role, worker.NewFixed(action, nil)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// parseVars разбирает KEY=VALUE. Значение с запятыми становится списком.
func parseVars(kvs []string) (map[string]any, error) {
	vars := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q, expected KEY=VALUE", kv)
		}
		if strings.Contains(value, ",") {
			vars[key] = splitValues(value)
			continue
		}
		vars[key] = value
	}
	return vars, nil
}

func splitValues(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// runSummary — JSON-представление результата run.
type runSummary struct {
	Run     *domain.Run          `json:"run"`
	Outputs []*domain.StepOutput `json:"outputs"`
	Failed  []string             `json:"failed,omitempty"`
	Skipped []string             `json:"skipped,omitempty"`
}

func printRunState(out *Output, state *orchestrator.RunState) {
	outputs := state.Outputs()

	rows := make([][]string, 0, len(outputs)+len(state.Skipped()))
	for _, o := range outputs {
		status := string(domain.StepStatusSucceeded)
		if state.StepFailed(o.StepName) {
			status = string(domain.StepStatusFailed)
		}
		rows = append(rows, []string{o.StepName, status, formatData(o.Data)})
	}
	for _, name := range state.Skipped() {
		rows = append(rows, []string{name, string(domain.StepStatusSkipped), ""})
	}

	out.Print([]string{"STEP", "STATUS", "DATA"}, rows, runSummary{
		Run:     state.Run,
		Outputs: outputs,
		Failed:  state.Failed(),
		Skipped: state.Skipped(),
	})
}

// formatData печатает data шага как k=v в порядке ключей.
func formatData(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		v := fmt.Sprint(data[k])
		if len(v) > 60 {
			v = v[:57] + "..."
		}
		parts[i] = k + "=" + v
	}
	return strings.Join(parts, " ")
}
