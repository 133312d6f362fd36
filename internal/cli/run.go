package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunStartCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunStatusCmd(clientFn, outputFn),
	)

	return cmd
}

var runHeaders = []string{"ID", "DEFINITION_ID", "STATUS", "STARTED", "COMPLETED"}

func runRow(r RunResponse) []string {
	return []string{r.ID, r.DefinitionID, r.Status, r.StartedAt, r.CompletedAt}
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var definitionID string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(ListRunsOpts{
				DefinitionID: definitionID,
				Status:       status,
				Limit:        limit,
			})
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = runRow(r)
			}

			out.Print(runHeaders, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&definitionID, "definition-id", "", "Filter by definition ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (RUNNING, SUCCESS, FAILURE)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var wait bool
	var pollInterval time.Duration
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "start DEFINITION_ID",
		Short: "Start a new run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.StartRun(args[0])
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Run started: %s", run.ID))

			if !wait {
				out.Print(runHeaders, [][]string{runRow(*run)}, run)
				return nil
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			status, err := waitRun(ctx, client, run.ID, pollInterval)
			if err != nil {
				return err
			}

			printRunStatus(out, status)
			if status.Status != "SUCCESS" {
				return fmt.Errorf("run %s finished with %s", run.ID, status.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the run finishes")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", time.Second, "Status poll interval with --wait")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up waiting after this duration (0 = no limit)")

	return cmd
}

// waitRun опрашивает статус run, пока он не станет терминальным.
func waitRun(ctx context.Context, client *Client, runID string, interval time.Duration) (*RunStatusResponse, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := client.GetRunStatus(runID)
		if err != nil {
			return nil, err
		}
		if status.Status == "SUCCESS" || status.Status == "FAILURE" {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for run %s: %w", runID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details and task history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			details, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(details)
				return nil
			}

			out.Table(
				[]string{"ID", "DEFINITION_ID", "STATUS", "ERROR", "STARTED", "COMPLETED"},
				[][]string{{
					details.Run.ID, details.Run.DefinitionID, details.Run.Status,
					details.Run.Error, details.Run.StartedAt, details.Run.CompletedAt,
				}},
			)
			out.Section("Task history")

			rows := make([][]string, len(details.Tasks))
			for i, t := range details.Tasks {
				rows[i] = []string{t.TaskName, t.Executor, t.Status, t.StartedAt, t.CompletedAt, t.Error()}
			}
			out.Table([]string{"TASK", "EXECUTOR", "STATUS", "STARTED", "COMPLETED", "ERROR"}, rows)
			return nil
		},
	}
}

func newRunStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID",
		Short: "Show run status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			status, err := client.GetRunStatus(args[0])
			if err != nil {
				return err
			}

			printRunStatus(out, status)
			return nil
		},
	}
}

func printRunStatus(out *Output, status *RunStatusResponse) {
	if out.jsonMode {
		out.JSON(status)
		return
	}

	out.Table([]string{"RUN_ID", "STATUS", "ERROR"}, [][]string{{status.RunID, status.Status, status.Error}})

	names := make([]string, 0, len(status.Tasks))
	for name := range status.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, len(names))
	for i, name := range names {
		rows[i] = []string{name, status.Tasks[name]}
	}
	out.Section("Tasks")
	out.Table([]string{"TASK", "STATUS"}, rows)
}
