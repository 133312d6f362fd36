package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/steps"
)

// DefaultInterpreter — интерпретатор для params.script.
const DefaultInterpreter = "python3"

// ScriptExecutor выполняет задачи kind script.
//
// Порядок выбора:
//  1. Go handler из registry (params.handler или имя задачи).
//  2. params.script через params.interpreter -c.
//  3. Echo: {"message": ..., "params": ...}.
type ScriptExecutor struct {
	registry *steps.Registry
}

// NewScriptExecutor создаёт ScriptExecutor с реестром обработчиков.
func NewScriptExecutor(registry *steps.Registry) *ScriptExecutor {
	if registry == nil {
		registry = steps.NewRegistry()
	}
	return &ScriptExecutor{registry: registry}
}

// Kind возвращает domain.ExecutorScript.
func (e *ScriptExecutor) Kind() domain.ExecutorKind { return domain.ExecutorScript }

// Execute выполняет задачу.
func (e *ScriptExecutor) Execute(ctx context.Context, req ExecRequest) (map[string]any, error) {
	if step, ok := e.registry.Lookup(req.TaskName, req.Params); ok {
		resp, err := step.Execute(ctx, steps.NewRequest(req.RunID, req.TaskName, req.Params))
		if resp == nil {
			return nil, err
		}
		return resp.Outputs, err
	}

	if script := steps.ParamString(req.Params, "script"); script != "" {
		interpreter := steps.ParamString(req.Params, "interpreter")
		if interpreter == "" {
			interpreter = DefaultInterpreter
		}
		return runProcess(command(ctx, req.Params, interpreter, "-c", script))
	}

	return map[string]any{
		"message": fmt.Sprintf("Executed script task '%s' dynamically", req.TaskName),
		"params":  req.Params,
	}, nil
}
