package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SIslamMun/AgentFactory/internal/engine"
	"github.com/SIslamMun/AgentFactory/internal/orchestrator"
	"github.com/SIslamMun/AgentFactory/internal/scheduler"
)

// NewScheduleCmd создаёт команду запуска pipeline по расписанию.
func NewScheduleCmd(rtFn func() *Runtime, outputFn func() *Output) *cobra.Command {
	var (
		flags    pipelineFlags
		cronExpr string
		timezone string
		maxRuns  int
	)

	cmd := &cobra.Command{
		Use:   "schedule PIPELINE.yaml",
		Short: "Execute a pipeline on a cron schedule, one run at a time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()
			rt := rtFn()

			spec, err := engine.LoadPipeline(args[0])
			if err != nil {
				return err
			}
			vars, err := parseVars(flags.vars)
			if err != nil {
				return err
			}

			loc := scheduler.LoadLocation(timezone)
			next, err := scheduler.NextDue(cronExpr, loc, time.Now())
			if err != nil {
				return err
			}

			deps, err := loadDeps(ctx, rt, flags.roles)
			if err != nil {
				return err
			}

			sched, err := scheduler.New(scheduler.Config{
				CronExpr: cronExpr,
				Location: loc,
				MaxRuns:  maxRuns,
				Logger:   rt.logger,
				Job: func(ctx context.Context, due time.Time) error {
					state, err := executePipeline(ctx, deps, spec, orchestrator.Options{
						Task:     flags.task,
						FailFast: !flags.continueOnError,
						Vars:     vars,
					})
					if state != nil {
						out.Success(fmt.Sprintf("Run %s (due %s): %s", state.RunID(), due.Format(time.RFC3339), state.Status()))
					}
					return err
				},
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline %s scheduled, first run at %s", spec.ID, next.Format(time.RFC3339)))
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}

			out.Print(
				[]string{"PIPELINE", "CRON", "RUNS", "FAILURES"},
				[][]string{{spec.ID, cronExpr, fmt.Sprint(sched.Runs()), fmt.Sprint(sched.Failures())}},
				map[string]any{"pipeline_id": spec.ID, "cron": cronExpr, "runs": sched.Runs(), "failures": sched.Failures()},
			)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (5 fields or @every DURATION)")
	cmd.Flags().StringVar(&timezone, "tz", "UTC", "Timezone of the cron expression")
	cmd.Flags().IntVar(&maxRuns, "max-runs", 0, "Stop after N runs (0 = run until interrupted)")
	_ = cmd.MarkFlagRequired("cron")

	return cmd
}
