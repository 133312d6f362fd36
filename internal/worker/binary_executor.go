package worker

import (
	"context"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/steps"
)

// BinaryExecutor запускает нативный бинарник params.binary_path.
//
// Бинарник запускается напрямую, без shell: аргументы передаются
// списком params.args. Поддерживаются env и workdir, как у ShellExecutor.
type BinaryExecutor struct{}

// Kind возвращает domain.ExecutorBinary.
func (e *BinaryExecutor) Kind() domain.ExecutorKind { return domain.ExecutorBinary }

// Execute запускает бинарник.
func (e *BinaryExecutor) Execute(ctx context.Context, req ExecRequest) (map[string]any, error) {
	path := steps.ParamString(req.Params, "binary_path")
	if path == "" {
		return nil, &ParamError{Kind: domain.ExecutorBinary, Param: "binary_path"}
	}
	args := steps.ParamStrings(req.Params, "args")
	return runProcess(command(ctx, req.Params, path, args...))
}
