package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для управления schedules.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage schedules",
	}

	cmd.AddCommand(
		newScheduleListCmd(clientFn, outputFn),
		newScheduleCreateCmd(clientFn, outputFn),
		newScheduleDeleteCmd(clientFn, outputFn),
		newSchedulePauseCmd(clientFn, outputFn),
		newScheduleResumeCmd(clientFn, outputFn),
	)

	return cmd
}

var scheduleHeaders = []string{"ID", "NAME", "TARGET", "RULE", "ENABLED", "NEXT_DUE", "LAST_RUN"}

func scheduleRow(s ScheduleResponse) []string {
	return []string{
		s.ID, s.Name, s.Target(), s.Rule(),
		strconv.FormatBool(s.Enabled), s.NextDueAt, s.LastRunAt,
	}
}

// scheduleRuleFlags — общие флаги правила для schedule create и task schedule.
type scheduleRuleFlags struct {
	name     string
	every    string
	cron     string
	timezone string
	disabled bool
}

func (f *scheduleRuleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Schedule name")
	cmd.Flags().StringVar(&f.every, "every", "", "Interval, e.g. 60s or 5m")
	cmd.Flags().StringVar(&f.cron, "cron", "", "Cron expression, e.g. '0 * * * *'")
	cmd.Flags().StringVar(&f.timezone, "timezone", "", "IANA timezone for --cron (default UTC)")
	cmd.Flags().BoolVar(&f.disabled, "disabled", false, "Create the schedule paused")
	cmd.MarkFlagsMutuallyExclusive("every", "cron")
}

func (f *scheduleRuleFlags) request() (CreateScheduleRequest, error) {
	req := CreateScheduleRequest{
		Name:     f.name,
		CronExpr: f.cron,
		Timezone: f.timezone,
	}

	switch {
	case f.cron != "":
	case f.every != "":
		sec, err := intervalSeconds(f.every)
		if err != nil {
			return req, err
		}
		req.IntervalSec = sec
	default:
		return req, errors.New("one of --every or --cron is required")
	}

	if f.disabled {
		enabled := false
		req.Enabled = &enabled
	}
	return req, nil
}

func newScheduleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListSchedulesOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedules, err := client.ListSchedules(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				rows[i] = scheduleRow(s)
			}

			out.Print(scheduleHeaders, rows, schedules)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.DefinitionID, "definition-id", "", "Filter by definition ID")
	cmd.Flags().StringVar(&opts.TaskID, "task-id", "", "Filter by standalone task ID")

	return cmd
}

func newScheduleCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts scheduleRuleFlags

	cmd := &cobra.Command{
		Use:   "create DEFINITION_ID",
		Short: "Create a schedule for a definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req, err := opts.request()
			if err != nil {
				return err
			}

			schedule, err := client.CreateSchedule(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule created: %s", schedule.ID))
			out.Print(scheduleHeaders, [][]string{scheduleRow(*schedule)}, schedule)
			return nil
		},
	}

	opts.register(cmd)

	return cmd
}

func newScheduleDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteSchedule(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule deleted: %s", args[0]))
			return nil
		},
	}
}

func newSchedulePauseCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "pause ID",
		Short: "Pause a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedule, err := client.PauseSchedule(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule paused: %s", args[0]))
			out.Print(scheduleHeaders, [][]string{scheduleRow(*schedule)}, schedule)
			return nil
		},
	}
}

func newScheduleResumeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "resume ID",
		Short: "Resume a paused schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedule, err := client.ResumeSchedule(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule resumed: %s", args[0]))
			out.Print(scheduleHeaders, [][]string{scheduleRow(*schedule)}, schedule)
			return nil
		},
	}
}
