package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// DefaultAPIURL — адрес API, если не задан ни флаг, ни ZURIFLOW_API_URL.
const DefaultAPIURL = "http://localhost:8080"

// EnvAPIURL — переменная окружения с адресом API.
const EnvAPIURL = "ZURIFLOW_API_URL"

// NewRootCmd собирает корневую команду zuriflow.
func NewRootCmd(version string) *cobra.Command {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "zuriflow",
		Short:         "ZuriFlow CLI — workflow orchestration tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := DefaultAPIURL
	if env := os.Getenv(EnvAPIURL); env != "" {
		defaultURL = env
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL (env "+EnvAPIURL+")")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *Client { return NewClient(apiURL) }
	outputFn := func() *Output {
		return NewOutput(jsonOutput, rootCmd.OutOrStdout(), rootCmd.ErrOrStderr())
	}

	rootCmd.AddCommand(
		NewDefinitionCmd(clientFn, outputFn),
		NewRunCmd(clientFn, outputFn),
		NewTaskCmd(clientFn, outputFn),
		NewScheduleCmd(clientFn, outputFn),
	)

	return rootCmd
}
