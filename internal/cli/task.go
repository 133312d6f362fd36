package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для standalone задач.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage standalone tasks",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskCreateCmd(clientFn, outputFn),
		newTaskRunCmd(clientFn, outputFn),
		newTaskScheduleCmd(clientFn, outputFn),
	)

	return cmd
}

var taskHeaders = []string{"ID", "NAME", "EXECUTOR", "CREATED"}

func taskRow(t StandaloneTaskResponse) []string {
	return []string{t.ID, t.TaskName, t.Executor, t.CreatedAt}
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List standalone tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks()
			if err != nil {
				return err
			}

			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = taskRow(t)
			}

			out.Print(taskHeaders, rows, tasks)
			return nil
		},
	}
}

func newTaskCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string
	var name string
	var executor string
	var params []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a standalone task from a file or flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var req CreateTaskRequest
			if file != "" {
				doc, err := readDocument(file, cmd.InOrStdin())
				if err != nil {
					return err
				}
				if err := json.Unmarshal(doc, &req); err != nil {
					return fmt.Errorf("invalid task file: %w", err)
				}
			}

			// Флаги переопределяют поля файла.
			if name != "" {
				req.TaskName = name
			}
			if executor != "" {
				req.Executor = executor
			}
			overrides, err := parseParams(params)
			if err != nil {
				return err
			}
			for k, v := range overrides {
				if req.DefaultParams == nil {
					req.DefaultParams = make(map[string]any)
				}
				req.DefaultParams[k] = v
			}

			if req.TaskName == "" {
				return errors.New("task name is required: pass --name or task_name in --file")
			}

			task, err := client.CreateTask(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task created: %s", task.ID))
			out.Print(taskHeaders, [][]string{taskRow(*task)}, task)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to task file (YAML or JSON), - for stdin")
	cmd.Flags().StringVar(&name, "name", "", "Task name")
	cmd.Flags().StringVar(&executor, "executor", "", "Executor kind (script, shell, binary)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Default param as KEY=VALUE (repeatable)")

	return cmd
}

func newTaskRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "run ID",
		Short: "Run a standalone task now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			overrides, err := parseParams(params)
			if err != nil {
				return err
			}

			dispatched, err := client.RunTask(args[0], overrides)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task dispatched: run %s", dispatched.RunID))
			out.Print(
				[]string{"RUN_ID", "DISPATCH_ID"},
				[][]string{{dispatched.RunID, dispatched.DispatchID}},
				dispatched,
			)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "Param override as KEY=VALUE (repeatable)")

	return cmd
}

func newTaskScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts scheduleRuleFlags

	cmd := &cobra.Command{
		Use:   "schedule ID",
		Short: "Schedule a standalone task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req, err := opts.request()
			if err != nil {
				return err
			}

			schedule, err := client.ScheduleTask(args[0], req)
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
