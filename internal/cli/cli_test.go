package cli

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/SIslamMun/AgentFactory/internal/domain"
	"github.com/SIslamMun/AgentFactory/internal/engine"
	"github.com/SIslamMun/AgentFactory/internal/environment"
	"github.com/SIslamMun/AgentFactory/internal/mq"
	"github.com/SIslamMun/AgentFactory/internal/orchestrator"
)

func orchestratorOptions(failFast bool, vars map[string]any) orchestrator.Options {
	return orchestrator.Options{Task: "test", FailFast: failFast, Vars: vars}
}

// scriptedEnv отвечает заранее заданными данными по имени действия.
type scriptedEnv struct {
	actions []domain.Action
	data    map[string]map[string]any
	fail    map[string]error
}

func (e *scriptedEnv) Reset(domain.TaskSpec) domain.Observation {
	return domain.Observation{Text: "ready"}
}

func (e *scriptedEnv) Step(_ context.Context, a domain.Action) (domain.StepResult, error) {
	e.actions = append(e.actions, a)
	if err := e.fail[a.Name]; err != nil {
		return domain.StepResult{Reward: -0.5}, err
	}
	return domain.StepResult{
		Observation: domain.Observation{Text: "ok", Data: e.data[a.Name]},
		Reward:      0.1,
	}, nil
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"src=/data/in.h5", "files=a.txt, b.txt,", "empty="})
	if err != nil {
		t.Fatalf("parseVars: %v", err)
	}

	want := map[string]any{
		"src":   "/data/in.h5",
		"files": []string{"a.txt", "b.txt"},
		"empty": "",
	}
	if !reflect.DeepEqual(vars, want) {
		t.Errorf("vars = %#v, want %#v", vars, want)
	}

	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseVars([]string{bad}); err == nil {
			t.Errorf("parseVars(%q) expected error", bad)
		}
	}
}

func TestBuildRegistry(t *testing.T) {
	registry, err := buildRegistry(nil)
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}

	want := []string{"destroyer", "ingestor", "lister", "pruner", "querier", "retriever"}
	if got := registry.Roles(); !reflect.DeepEqual(got, want) {
		t.Errorf("roles = %v, want %v", got, want)
	}

	registry, err = buildRegistry([]string{"archiver=assimilate", "pruner=destroy"})
	if err != nil {
		t.Fatalf("buildRegistry with overrides: %v", err)
	}
	agent, err := registry.Get("pruner")
	if err != nil {
		t.Fatalf("Get(pruner): %v", err)
	}
	action, err := agent.Act(context.Background(), domain.Observation{Data: map[string]any{"tag": "t"}})
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if action.Name != environment.ActionDestroy {
		t.Errorf("overridden pruner action = %q, want destroy", action.Name)
	}
	if _, err := registry.Get("archiver"); err != nil {
		t.Errorf("archiver not registered: %v", err)
	}

	if _, err := buildRegistry([]string{"broken"}); err == nil {
		t.Error("expected error for binding without '='")
	}
}

func TestDefaultIngestorFillsDefaults(t *testing.T) {
	registry, err := buildRegistry(nil)
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}
	agent, _ := registry.Get("ingestor")

	action, err := agent.Act(context.Background(), domain.Observation{
		Data: map[string]any{"src": []any{"file::/tmp/a.txt"}},
	})
	if err != nil {
		t.Fatalf("Act: %v", err)
	}

	if action.Name != environment.ActionAssimilate {
		t.Errorf("action = %q, want assimilate", action.Name)
	}
	if action.Params["dst"] != "default" || action.Params["format"] != environment.DefaultFormat {
		t.Errorf("defaults not applied: %v", action.Params)
	}
}

func TestFormatData(t *testing.T) {
	got := formatData(map[string]any{"tag": "t1", "files": 2, "long": strings.Repeat("x", 80)})

	if !strings.HasPrefix(got, "files=2 long=") || !strings.HasSuffix(got, " tag=t1") {
		t.Errorf("formatData = %q", got)
	}
	if !strings.Contains(got, "...") {
		t.Errorf("long value not truncated: %q", got)
	}
	if formatData(nil) != "" {
		t.Error("formatData(nil) should be empty")
	}
}

func testSpec() *domain.PipelineSpec {
	return &domain.PipelineSpec{
		ID: "ingest-and-read",
		Steps: []domain.PipelineStep{
			{
				Name:    "ingest",
				Role:    "ingestor",
				Inputs:  map[string]any{"src": "${pipeline.src}", "dst": "run-tag"},
				Outputs: []string{"tag"},
			},
			{
				Name:      "read",
				Role:      "retriever",
				Inputs:    map[string]any{"tag": "${ingest.tag}"},
				DependsOn: []string{"ingest"},
			},
		},
	}
}

func TestExecutePipeline(t *testing.T) {
	env := &scriptedEnv{data: map[string]map[string]any{
		"assimilate": {"tag": "run-tag", "files": 1},
		"retrieve":   {"tag": "run-tag", "blob_name": "a.txt", "cache_hit": true},
	}}
	registry, _ := buildRegistry(nil)

	state, err := executePipeline(context.Background(),
		pipelineDeps{Env: env, Registry: registry},
		testSpec(),
		orchestratorOptions(true, map[string]any{"src": []string{"file::/tmp/a.txt"}}),
	)
	if err != nil {
		t.Fatalf("executePipeline: %v", err)
	}
	if state.Status() != domain.RunStatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", state.Status())
	}

	if len(env.actions) != 2 {
		t.Fatalf("actions = %d, want 2", len(env.actions))
	}
	if env.actions[0].Name != "assimilate" || env.actions[1].Name != "retrieve" {
		t.Errorf("action order = %s, %s", env.actions[0].Name, env.actions[1].Name)
	}
	if env.actions[1].Params["tag"] != "run-tag" {
		t.Errorf("read step got tag %v, want run-tag", env.actions[1].Params["tag"])
	}
	if !reflect.DeepEqual(env.actions[0].Params["src"], []string{"file::/tmp/a.txt"}) {
		t.Errorf("ingest src = %#v", env.actions[0].Params["src"])
	}
}

func TestExecutePipelineUnknownRole(t *testing.T) {
	spec := testSpec()
	spec.Steps[1].Role = "summarizer"
	registry, _ := buildRegistry(nil)
	env := &scriptedEnv{data: map[string]map[string]any{"assimilate": {"tag": "run-tag"}}}

	// fail-fast: неизвестная роль отклоняется до запуска
	_, err := executePipeline(context.Background(),
		pipelineDeps{Env: env, Registry: registry}, spec, orchestratorOptions(true, nil))
	if !errors.Is(err, engine.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if len(env.actions) != 0 {
		t.Errorf("no step should run, got %d actions", len(env.actions))
	}

	// continue-on-error: шаг пропускается, run частичный
	state, err := executePipeline(context.Background(),
		pipelineDeps{Env: env, Registry: registry}, spec, orchestratorOptions(false, nil))
	if err != nil {
		t.Fatalf("executePipeline: %v", err)
	}
	if state.Status() != domain.RunStatusPartial {
		t.Errorf("status = %s, want PARTIAL", state.Status())
	}
	if !reflect.DeepEqual(state.Skipped(), []string{"read"}) {
		t.Errorf("skipped = %v, want [read]", state.Skipped())
	}
}

func TestPrintRunState(t *testing.T) {
	env := &scriptedEnv{
		data: map[string]map[string]any{"assimilate": {"tag": "run-tag"}},
		fail: map[string]error{"retrieve": errors.New("bridge down")},
	}
	registry, _ := buildRegistry(nil)

	state, err := executePipeline(context.Background(),
		pipelineDeps{Env: env, Registry: registry}, testSpec(), orchestratorOptions(false, nil))
	if err != nil {
		t.Fatalf("executePipeline: %v", err)
	}

	var stdout, stderr bytes.Buffer
	printRunState(NewOutputTo(false, &stdout, &stderr), state)

	table := stdout.String()
	for _, want := range []string{"STEP", "ingest", "SUCCEEDED", "tag=run-tag", "read", "FAILED", "bridge down"} {
		if !strings.Contains(table, want) {
			t.Errorf("table missing %q:\n%s", want, table)
		}
	}

	stdout.Reset()
	printRunState(NewOutputTo(true, &stdout, &stderr), state)
	if !strings.Contains(stdout.String(), `"failed": [`) || !strings.Contains(stdout.String(), `"status": "PARTIAL"`) {
		t.Errorf("unexpected json:\n%s", stdout.String())
	}
}

func TestOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(false, &stdout, &stderr)

	out.Table([]string{"A", "B"}, [][]string{{"1", "2"}})
	out.Success("done")
	out.Error("boom")

	if !strings.Contains(stdout.String(), "A") || !strings.Contains(stdout.String(), "1") {
		t.Errorf("table = %q", stdout.String())
	}
	if stderr.String() != "done\nError: boom\n" {
		t.Errorf("stderr = %q", stderr.String())
	}

	stdout.Reset()
	NewOutputTo(true, &stdout, &stderr).Print(nil, nil, map[string]int{"n": 1})
	if strings.TrimSpace(stdout.String()) != "{\n  \"n\": 1\n}" {
		t.Errorf("json = %q", stdout.String())
	}
}

func TestPrintEvent(t *testing.T) {
	var stdout bytes.Buffer
	handler := printEvent(NewOutputTo(true, &stdout, &bytes.Buffer{}))

	err := handler(context.Background(), &mq.Delivery{
		ID:      "e1",
		Type:    mq.EventRunStarted,
		Payload: []byte(`{"pipeline_id":"p"}`),
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !strings.Contains(stdout.String(), `"pipeline_id"`) || strings.Contains(stdout.String(), "eyJ") {
		t.Errorf("payload not embedded as json:\n%s", stdout.String())
	}
}

func TestOutputFieldsAndEmptyTable(t *testing.T) {
	var stdout bytes.Buffer
	out := NewOutputTo(false, &stdout, &bytes.Buffer{})

	out.Table([]string{"TAG"}, nil)
	if stdout.String() != "(no rows)\n" {
		t.Errorf("empty table = %q", stdout.String())
	}

	stdout.Reset()
	out.Fields([][2]string{{"Hits", "3"}, {"Hit rate", "0.75"}}, nil)
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "Hits:") || !strings.HasSuffix(lines[1], "0.75") {
		t.Errorf("fields = %q", stdout.String())
	}

	stdout.Reset()
	out.Table([]string{"STEP", "DATA"}, [][]string{{"a", "line1\nline2"}})
	if !strings.Contains(stdout.String(), "line1 line2") {
		t.Errorf("newline not flattened: %q", stdout.String())
	}
}
