package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/SIslamMun/AgentFactory/internal/domain"
	"github.com/SIslamMun/AgentFactory/internal/engine"
	"github.com/SIslamMun/AgentFactory/internal/telemetry"
	"github.com/SIslamMun/AgentFactory/internal/worker"
)

// Environment — общее stateful окружение, в котором шаги выполняют действия.
// Реализуется *environment.Environment.
type Environment interface {
	Reset(task domain.TaskSpec) domain.Observation
	Step(ctx context.Context, action domain.Action) (domain.StepResult, error)
}

// Agents — источник воркеров по роли. Реализуется *worker.Registry.
type Agents interface {
	Get(role string) (worker.Agent, error)
}

// Recorder сохраняет историю runs. Реализуется *repo.RunRepo.
type Recorder interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	SaveStep(ctx context.Context, rec *domain.StepRecord) error
	FinishRun(ctx context.Context, run *domain.Run) error
}

// Events публикует события выполнения. Реализуется *mq.Publisher.
type Events interface {
	PublishRunStarted(ctx context.Context, run *domain.Run) error
	PublishStepFinished(ctx context.Context, rec *domain.StepRecord) error
	PublishRunFinished(ctx context.Context, run *domain.Run) error
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Environment — окружение, общее для всех шагов. Обязательно.
	Environment Environment

	// Registry — воркеры по ролям. Обязательно.
	Registry Agents

	// Recorder — история runs. Nil — не сохраняется.
	Recorder Recorder

	// Events — публикация событий. Nil — не публикуются.
	Events Events

	Logger *slog.Logger
}

// Options — параметры одного выполнения.
type Options struct {
	// Task — текст задачи, передаётся окружению при Reset.
	Task string

	// FailFast — прервать run на первой ошибке шага.
	FailFast bool

	// Vars — начальные переменные, доступны как ${pipeline.<key>}.
	Vars map[string]any
}

// Orchestrator последовательно выполняет шаги pipeline.
//
// Шаги идут строго по одному в топологическом порядке DAG: окружение
// stateful и разделяется всеми шагами.
type Orchestrator struct {
	env      Environment
	agents   Agents
	recorder Recorder
	events   Events
	logger   *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		env:      cfg.Environment,
		agents:   cfg.Registry,
		recorder: cfg.Recorder,
		events:   cfg.Events,
		logger:   logger.With("component", "orchestrator"),
	}
}

// Execute выполняет pipeline.
//
// Возвращает RunState и в случае ошибки: в нём outputs шагов, успевших
// выполниться до прерывания.
func (o *Orchestrator) Execute(ctx context.Context, dag *engine.DAG, opts Options) (*RunState, error) {
	if dag == nil {
		return nil, ErrNilDAG
	}
	if o.env == nil {
		return nil, ErrNoEnvironment
	}
	if o.agents == nil {
		return nil, ErrNoRegistry
	}

	spec := dag.Spec()
	state := NewRunState(domain.NewRun(spec.ID, opts.Task, opts.Vars), opts.Vars)
	logger := telemetry.WithRunID(o.logger, state.RunID().String())

	logger.Info("pipeline started",
		"pipeline_id", spec.ID,
		"steps", dag.Size(),
		"fail_fast", opts.FailFast,
	)

	o.recordRun(ctx, logger, state.Run)
	o.env.Reset(domain.TaskSpec{
		ID:          state.RunID().String(),
		Instruction: opts.Task,
		Metadata:    map[string]any{"pipeline_id": spec.ID},
	})

	for _, step := range dag.Order() {
		if err := ctx.Err(); err != nil {
			return state, o.abort(ctx, logger, state, NewPipelineError(step.Name, "run cancelled", err))
		}

		if err := o.executeStep(ctx, logger, state, step, opts.FailFast); err != nil {
			return state, o.abort(ctx, logger, state, err)
		}
	}

	status := domain.RunStatusSucceeded
	if len(state.Failed()) > 0 || len(state.Skipped()) > 0 {
		status = domain.RunStatusPartial
	}
	state.Run.Finish(status, "")
	o.finishRun(ctx, logger, state.Run)

	logger.Info("pipeline finished",
		"status", status,
		"outputs", len(state.Outputs()),
		"failed", len(state.Failed()),
		"skipped", len(state.Skipped()),
		"duration", state.Run.Duration(),
	)
	return state, nil
}

// executeStep выполняет один шаг. Ошибка возвращается только в fail-fast.
func (o *Orchestrator) executeStep(ctx context.Context, runLogger *slog.Logger, state *RunState, step domain.PipelineStep, failFast bool) error {
	logger := telemetry.WithStep(runLogger, step.Name, step.Role)
	started := time.Now()

	agent, err := o.agents.Get(step.Role)
	if err != nil {
		telemetry.PipelineSteps.WithLabelValues(step.Role, string(domain.StepStatusSkipped)).Inc()
		if failFast {
			return NewPipelineError(step.Name,
				fmt.Sprintf("no worker registered for role %q", step.Role), engine.ErrMissingWorker)
		}
		logger.Warn("no worker for role, skipping step")
		state.markSkipped(step.Name)
		o.recordStep(ctx, logger, &domain.StepRecord{
			RunID:      state.RunID(),
			StepName:   step.Name,
			Role:       step.Role,
			Status:     domain.StepStatusSkipped,
			Error:      err.Error(),
			FinishedAt: time.Now(),
		})
		return nil
	}

	inputs := state.vars.ResolveInputs(step.Inputs)
	obs := buildObservation(inputs)

	logger.Debug("step started", "inputs", len(inputs))

	reasoning, action, result, err := o.runAgent(telemetry.WithLogger(ctx, logger), agent, obs)
	duration := time.Since(started)
	telemetry.PipelineStepDuration.WithLabelValues(step.Role).Observe(duration.Seconds())

	rec := &domain.StepRecord{
		RunID:      state.RunID(),
		StepName:   step.Name,
		Role:       step.Role,
		Action:     action.Name,
		Reasoning:  reasoning,
		Reward:     result.Reward,
		Duration:   duration,
		FinishedAt: time.Now(),
	}

	if err != nil {
		telemetry.PipelineSteps.WithLabelValues(step.Role, string(domain.StepStatusFailed)).Inc()
		if failFast {
			return NewPipelineError(step.Name,
				fmt.Sprintf("step '%s' failed: %v", step.Name, err),
				errors.Join(engine.ErrStepFailed, err))
		}

		logger.Error("step failed, continuing", "error", err)
		out := &domain.StepOutput{
			StepName:    step.Name,
			Observation: domain.Observation{Text: "Error: " + err.Error()},
			Data:        map[string]any{"error": err.Error()},
		}
		state.store(out, true)

		rec.Status = domain.StepStatusFailed
		rec.Output = out
		rec.Error = err.Error()
		o.recordStep(ctx, logger, rec)
		return nil
	}

	out := &domain.StepOutput{
		StepName:    step.Name,
		Observation: result.Observation,
		Data:        projectOutputs(step, action, result),
	}
	state.store(out, false)

	telemetry.PipelineSteps.WithLabelValues(step.Role, string(domain.StepStatusSucceeded)).Inc()
	logger.Info("step completed",
		"action", action.Name,
		"reward", result.Reward,
		"duration", duration,
	)

	rec.Status = domain.StepStatusSucceeded
	rec.Output = out
	o.recordStep(ctx, logger, rec)
	return nil
}

// runAgent проводит воркер через рассуждение и действие и отдаёт действие окружению.
func (o *Orchestrator) runAgent(ctx context.Context, agent worker.Agent, obs domain.Observation) (string, domain.Action, domain.StepResult, error) {
	reasoning, err := agent.Think(ctx, obs)
	if err != nil {
		return "", domain.Action{}, domain.StepResult{}, fmt.Errorf("think: %w", err)
	}

	action, err := agent.Act(ctx, obs)
	if err != nil {
		return reasoning, domain.Action{}, domain.StepResult{}, fmt.Errorf("act: %w", err)
	}

	result, err := o.env.Step(ctx, action)
	return reasoning, action, result, err
}

// abort финализирует run со статусом FAILED.
func (o *Orchestrator) abort(ctx context.Context, logger *slog.Logger, state *RunState, err error) error {
	state.Run.Finish(domain.RunStatusFailed, err.Error())
	o.finishRun(ctx, logger, state.Run)
	logger.Error("pipeline aborted", "error", err, "outputs", len(state.Outputs()))
	return err
}

// buildObservation строит наблюдение для воркера из разрешённых inputs.
func buildObservation(inputs map[string]any) domain.Observation {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, inputs[k])
	}

	return domain.Observation{
		Text: strings.Join(parts, " | "),
		Data: inputs,
	}
}

// projectOutputs собирает data шага из объявленных outputs.
//
// Ключ берётся из данных результата, иначе из одноимённого параметра
// действия. Tag дополняется из параметров tag или dst, matches копируется
// из результата целиком.
func projectOutputs(step domain.PipelineStep, action domain.Action, result domain.StepResult) map[string]any {
	data := make(map[string]any, len(step.Outputs)+2)
	resData := result.Observation.Data

	for _, key := range step.Outputs {
		if v, ok := resData[key]; ok {
			data[key] = v
		} else if v, ok := action.Param(key); ok {
			data[key] = v
		}
	}

	if _, ok := data["tag"]; !ok {
		if v, ok := action.Param("tag"); ok {
			data["tag"] = v
		} else if v, ok := action.Param("dst"); ok {
			data["tag"] = v
		}
	}

	if v, ok := resData["matches"]; ok {
		data["matches"] = v
	}

	return data
}

func (o *Orchestrator) recordRun(ctx context.Context, logger *slog.Logger, run *domain.Run) {
	if o.recorder != nil {
		if err := o.recorder.CreateRun(ctx, run); err != nil {
			logger.Warn("failed to record run", "error", err)
		}
	}
	if o.events != nil {
		if err := o.events.PublishRunStarted(ctx, run); err != nil {
			logger.Warn("failed to publish run started", "error", err)
		}
	}
}

func (o *Orchestrator) recordStep(ctx context.Context, logger *slog.Logger, rec *domain.StepRecord) {
	if o.recorder != nil {
		if err := o.recorder.SaveStep(ctx, rec); err != nil {
			logger.Warn("failed to record step", "error", err)
		}
	}
	if o.events != nil {
		if err := o.events.PublishStepFinished(ctx, rec); err != nil {
			logger.Warn("failed to publish step finished", "error", err)
		}
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, logger *slog.Logger, run *domain.Run) {
	// run завершается и при отменённом ctx: историю всё равно дописываем
	ctx = context.WithoutCancel(ctx)

	if o.recorder != nil {
		if err := o.recorder.FinishRun(ctx, run); err != nil {
			logger.Warn("failed to record run finish", "error", err)
		}
	}
	if o.events != nil {
		if err := o.events.PublishRunFinished(ctx, run); err != nil {
			logger.Warn("failed to publish run finished", "error", err)
		}
	}
}
