package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewDefinitionCmd создаёт группу команд для управления definitions.
func NewDefinitionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "definition",
		Aliases: []string{"def"},
		Short:   "Manage workflow definitions",
	}

	cmd.AddCommand(
		newDefinitionListCmd(clientFn, outputFn),
		newDefinitionCreateCmd(clientFn, outputFn),
		newDefinitionShowCmd(clientFn, outputFn),
		newDefinitionDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

var definitionHeaders = []string{"ID", "NAME", "TASKS", "CREATED"}

func definitionRow(d DefinitionResponse) []string {
	return []string{d.ID, d.Name, strconv.Itoa(len(d.Definition.Tasks)), d.CreatedAt}
}

func newDefinitionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			defs, err := client.ListDefinitions()
			if err != nil {
				return err
			}

			rows := make([][]string, len(defs))
			for i, d := range defs {
				rows[i] = definitionRow(d)
			}

			out.Print(definitionHeaders, rows, defs)
			return nil
		},
	}
}

func newDefinitionCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a definition from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := readDocument(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			def, err := client.CreateDefinition(doc)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Definition created: %s", def.ID))
			for _, w := range def.Warnings {
				out.Success("Warning: " + w)
			}
			out.Print(definitionHeaders, [][]string{definitionRow(*def)}, def)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to definition file, - for stdin (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newDefinitionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show definition details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			def, err := client.GetDefinition(args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(def)
				return nil
			}

			out.Table(definitionHeaders, [][]string{definitionRow(*def)})
			out.Section("Tasks")

			names := make([]string, 0, len(def.Definition.Tasks))
			for name := range def.Definition.Tasks {
				names = append(names, name)
			}
			sort.Strings(names)

			start := make(map[string]bool, len(def.Definition.StartTasks))
			for _, s := range def.Definition.StartTasks {
				start[s] = true
			}

			rows := make([][]string, len(names))
			for i, name := range names {
				t := def.Definition.Tasks[name]
				rows[i] = []string{name, t.Executor, strings.Join(t.Dependencies, ","), strconv.FormatBool(start[name])}
			}
			out.Table([]string{"TASK", "EXECUTOR", "DEPENDS_ON", "START"}, rows)
			return nil
		},
	}
}

func newDefinitionDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteDefinition(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Definition deleted: %s", args[0]))
			return nil
		},
	}
}
