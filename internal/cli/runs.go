package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/SIslamMun/AgentFactory/internal/domain"
	"github.com/SIslamMun/AgentFactory/internal/repo"
)

// errNoHistory — DB_URL не задан, история run'ов недоступна.
var errNoHistory = errors.New("run history is disabled, set DB_URL")

// NewRunsCmd создаёт группу команд для истории run'ов.
func NewRunsCmd(rtFn func() *Runtime, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse recorded pipeline runs",
	}

	cmd.AddCommand(
		newRunsListCmd(rtFn, outputFn),
		newRunsShowCmd(rtFn, outputFn),
	)

	return cmd
}

func newRunsListCmd(rtFn func() *Runtime, outputFn func() *Output) *cobra.Command {
	var filter repo.RunFilter
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runRepo, err := rtFn().RunRepo(cmd.Context())
			if err != nil {
				return err
			}
			if runRepo == nil {
				return errNoHistory
			}

			filter.Status = domain.RunStatus(status)
			runs, err := runRepo.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID.String(),
					r.PipelineID,
					string(r.Status),
					r.StartedAt.Format(time.RFC3339),
					r.Duration().Round(time.Millisecond).String(),
				}
			}
			outputFn().Print([]string{"ID", "PIPELINE", "STATUS", "STARTED", "DURATION"}, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.PipelineID, "pipeline", "", "Filter by pipeline id")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (RUNNING, SUCCEEDED, PARTIAL, FAILED)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum number of runs")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "Number of runs to skip")

	return cmd
}

// runDetails — JSON-представление runs show.
type runDetails struct {
	Run   *domain.Run         `json:"run"`
	Steps []domain.StepRecord `json:"steps"`
}

func newRunsShowCmd(rtFn func() *Runtime, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a run and its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}

			runRepo, err := rtFn().RunRepo(cmd.Context())
			if err != nil {
				return err
			}
			if runRepo == nil {
				return errNoHistory
			}

			run, err := runRepo.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}
			steps, err := runRepo.ListSteps(cmd.Context(), id)
			if err != nil {
				return err
			}

			rows := make([][]string, len(steps))
			for i, s := range steps {
				rows[i] = []string{
					s.StepName,
					s.Role,
					string(s.Status),
					s.Action,
					fmt.Sprintf("%.2f", s.Reward),
					s.Duration.Round(time.Millisecond).String(),
					s.Error,
				}
			}

			out := outputFn()
			out.Print([]string{"STEP", "ROLE", "STATUS", "ACTION", "REWARD", "DURATION", "ERROR"}, rows,
				runDetails{Run: run, Steps: steps})
			out.Success(fmt.Sprintf("Run %s (%s): %s", run.ID, run.PipelineID, run.Status))
			return nil
		},
	}
}
