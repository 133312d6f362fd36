package worker

import (
	"context"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/steps"
)

// ShellExecutor выполняет params.command через sh -c.
//
// Параметры:
//   - command — строка для shell (обязательный)
//   - env — map дополнительных переменных окружения
//   - workdir — рабочая директория
type ShellExecutor struct {
	// Shell — интерпретатор (default: sh).
	Shell string
}

// Kind возвращает domain.ExecutorShell.
func (e *ShellExecutor) Kind() domain.ExecutorKind { return domain.ExecutorShell }

// Execute выполняет команду.
func (e *ShellExecutor) Execute(ctx context.Context, req ExecRequest) (map[string]any, error) {
	cmdline := steps.ParamString(req.Params, "command")
	if cmdline == "" {
		return nil, &ParamError{Kind: domain.ExecutorShell, Param: "command"}
	}

	shell := e.Shell
	if shell == "" {
		shell = "sh"
	}
	return runProcess(command(ctx, req.Params, shell, "-c", cmdline))
}
