package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/shaiso/zuriflow/internal/steps"
)

// Общие параметры shell/binary/script-процессов.
const (
	paramEnv     = "env"
	paramWorkdir = "workdir"
)

// waitDelay — сколько ждать закрытия stdout/stderr после kill по таймауту.
const waitDelay = 2 * time.Second

// command собирает exec.Cmd с env и workdir из params.
func command(ctx context.Context, params map[string]any, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	cmd.Dir = steps.ParamString(params, paramWorkdir)

	if env := steps.ParamStringMap(params, paramEnv); len(env) > 0 {
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		cmd.Env = os.Environ()
		for _, k := range keys {
			cmd.Env = append(cmd.Env, k+"="+env[k])
		}
	}
	return cmd
}

// runProcess запускает процесс и возвращает {stdout, stderr, exit_code}.
//
// Ненулевой код выхода — *ExitError вместе с результатом.
// Процесс, который не удалось запустить, — ошибка без результата.
func runProcess(cmd *exec.Cmd) (map[string]any, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
	default:
		return nil, fmt.Errorf("run %s: %w", cmd.Path, err)
	}

	code := cmd.ProcessState.ExitCode()
	result := map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": code,
	}
	if code != 0 {
		return result, &ExitError{Code: code}
	}
	return result, nil
}
