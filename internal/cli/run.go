package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SIslamMun/AgentFactory/internal/engine"
	"github.com/SIslamMun/AgentFactory/internal/orchestrator"
)

// NewRunCmd создаёт команду выполнения pipeline.
func NewRunCmd(rtFn func() *Runtime, outputFn func() *Output) *cobra.Command {
	var flags pipelineFlags

	cmd := &cobra.Command{
		Use:   "run PIPELINE.yaml",
		Short: "Execute a pipeline once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			spec, err := engine.LoadPipeline(args[0])
			if err != nil {
				return err
			}
			vars, err := parseVars(flags.vars)
			if err != nil {
				return err
			}

			deps, err := loadDeps(ctx, rtFn(), flags.roles)
			if err != nil {
				return err
			}

			state, err := executePipeline(ctx, deps, spec, orchestrator.Options{
				Task:     flags.task,
				FailFast: !flags.continueOnError,
				Vars:     vars,
			})
			if state != nil {
				printRunState(out, state)
				out.Success(fmt.Sprintf("Run %s: %s", state.RunID(), state.Status()))
			}
			return err
		},
	}

	flags.register(cmd)
	return cmd
}
