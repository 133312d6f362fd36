// ZuriFlow CLI — инструмент командной строки для управления
// definitions, runs, standalone задачами и schedules через HTTP API.
//
// Использование:
//
//	zuriflow [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	definition  Управление definitions
//	run         Управление runs
//	task        Standalone задачи
//	schedule    Управление schedules
package main

import (
	"fmt"
	"os"

	"github.com/shaiso/zuriflow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
