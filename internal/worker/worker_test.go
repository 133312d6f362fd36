package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/zuriflow/internal/dispatch"
	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/mq"
	"github.com/shaiso/zuriflow/internal/repo"
	"github.com/shaiso/zuriflow/internal/repo/memory"
	"github.com/shaiso/zuriflow/internal/steps"
)

// --- Executors ---

func requireTool(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

func TestShellExecutor(t *testing.T) {
	requireTool(t, "sh")
	e := &ShellExecutor{}
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		out, err := e.Execute(ctx, ExecRequest{TaskName: "t", Params: map[string]any{
			"command": "echo out; echo err >&2",
		}})
		require.NoError(t, err)
		assert.Equal(t, "out\n", out["stdout"])
		assert.Equal(t, "err\n", out["stderr"])
		assert.Equal(t, 0, out["exit_code"])
	})

	t.Run("non-zero exit", func(t *testing.T) {
		out, err := e.Execute(ctx, ExecRequest{Params: map[string]any{"command": "echo partial; exit 3"}})
		require.Error(t, err)

		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 3, exitErr.Code)
		assert.ErrorIs(t, err, ErrNonZeroExit)
		assert.Equal(t, "partial\n", out["stdout"])
		assert.Equal(t, 3, out["exit_code"])
	})

	t.Run("missing command", func(t *testing.T) {
		out, err := e.Execute(ctx, ExecRequest{Params: map[string]any{}})
		assert.Nil(t, out)
		assert.ErrorIs(t, err, ErrMissingParam)
		assert.EqualError(t, err, "shell task requires a 'command' parameter")
	})

	t.Run("env and workdir", func(t *testing.T) {
		dir := t.TempDir()
		out, err := e.Execute(ctx, ExecRequest{Params: map[string]any{
			"command": "echo $ZURIFLOW_TEST_VAR; pwd",
			"env":     map[string]any{"ZURIFLOW_TEST_VAR": "bar"},
			"workdir": dir,
		}})
		require.NoError(t, err)
		stdout := out["stdout"].(string)
		assert.Contains(t, stdout, "bar\n")
		assert.Contains(t, stdout, filepath.Base(dir))
	})
}

func TestBinaryExecutor(t *testing.T) {
	echo := requireTool(t, "echo")
	e := &BinaryExecutor{}
	ctx := context.Background()

	out, err := e.Execute(ctx, ExecRequest{Params: map[string]any{
		"binary_path": echo,
		"args":        []any{"hello", "world"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out["stdout"])

	_, err = e.Execute(ctx, ExecRequest{Params: map[string]any{}})
	assert.EqualError(t, err, "binary task requires a 'binary_path' parameter")

	// Бинарник не найден: результата нет, только ошибка.
	out, err = e.Execute(ctx, ExecRequest{Params: map[string]any{
		"binary_path": filepath.Join(t.TempDir(), "missing"),
	}})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNonZeroExit)
	assert.Nil(t, out)
}

func TestScriptExecutor(t *testing.T) {
	e := NewScriptExecutor(steps.DefaultRegistry())
	ctx := context.Background()

	t.Run("dynamic echo", func(t *testing.T) {
		params := map[string]any{"x": 1.0}
		out, err := e.Execute(ctx, ExecRequest{TaskName: "extract", Params: params})
		require.NoError(t, err)
		assert.Equal(t, "Executed script task 'extract' dynamically", out["message"])
		assert.Equal(t, params, out["params"])
	})

	t.Run("registered handler", func(t *testing.T) {
		out, err := e.Execute(ctx, ExecRequest{TaskName: "anything", Params: map[string]any{
			"handler": "echo",
			"value":   "v",
		}})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"value": "v"}, out)
	})

	t.Run("interpreter", func(t *testing.T) {
		requireTool(t, "sh")
		out, err := e.Execute(ctx, ExecRequest{TaskName: "inline", Params: map[string]any{
			"script":      "echo from-script",
			"interpreter": "sh",
		}})
		require.NoError(t, err)
		assert.Equal(t, "from-script\n", out["stdout"])
	})
}

func TestExecutors(t *testing.T) {
	all := DefaultExecutors(nil)
	assert.Equal(t, domain.ExecutorKinds(), all.Kinds())

	only := all.Only([]domain.ExecutorKind{domain.ExecutorShell})
	assert.Equal(t, []domain.ExecutorKind{domain.ExecutorShell}, only.Kinds())

	_, err := only.Get(domain.ExecutorScript)
	assert.ErrorIs(t, err, ErrUnknownExecutor)

	assert.Equal(t, all, all.Only(nil))
}

// --- Runner ---

// panicStep — обработчик, который паникует.
type panicStep struct{}

func (panicStep) Name() string { return "boom" }

func (panicStep) Execute(context.Context, *steps.Request) (*steps.Response, error) {
	panic("kaboom")
}

func newRunner(store *memory.Store, completer Completer, timeout time.Duration) *Runner {
	registry := steps.DefaultRegistry()
	registry.Register(panicStep{})
	return NewRunner(RunnerConfig{
		Tasks:          store.Tasks(),
		Completer:      completer,
		Executors:      DefaultExecutors(registry),
		DefaultTimeout: timeout,
	})
}

// lastInstance возвращает последний instance задачи в run.
func lastInstance(t *testing.T, store *memory.Store, runID uuid.UUID) domain.TaskInstance {
	t.Helper()
	list, err := store.Tasks().ListByRun(context.Background(), runID)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	return list[len(list)-1]
}

func TestRunner_Outcomes(t *testing.T) {
	requireTool(t, "sh")

	tests := []struct {
		name      string
		executor  domain.ExecutorKind
		params    map[string]any
		status    domain.TaskStatus
		errSubstr string
		check     func(t *testing.T, result map[string]any)
	}{
		{
			name:     "script echo",
			executor: domain.ExecutorScript,
			params:   map[string]any{"a": "b"},
			status:   domain.TaskStatusSuccess,
			check: func(t *testing.T, result map[string]any) {
				assert.Contains(t, result["message"], "dynamically")
			},
		},
		{
			name:      "shell non-zero exit keeps output",
			executor:  domain.ExecutorShell,
			params:    map[string]any{"command": "echo partial; exit 2"},
			status:    domain.TaskStatusFailure,
			errSubstr: "exit status 2",
			check: func(t *testing.T, result map[string]any) {
				assert.Equal(t, "partial\n", result["stdout"])
				assert.Equal(t, 2, result["exit_code"])
			},
		},
		{
			name:      "missing parameter",
			executor:  domain.ExecutorShell,
			params:    nil,
			status:    domain.TaskStatusFailure,
			errSubstr: "shell task requires a 'command' parameter",
		},
		{
			name:      "panic",
			executor:  domain.ExecutorScript,
			params:    map[string]any{"handler": "boom"},
			status:    domain.TaskStatusFailure,
			errSubstr: "task panicked: kaboom",
		},
		{
			name:      "timeout",
			executor:  domain.ExecutorShell,
			params:    map[string]any{"command": "sleep 5", "timeout_sec": 1.0},
			status:    domain.TaskStatusFailure,
			errSubstr: "execution timeout",
		},
		{
			name:      "unknown executor",
			executor:  domain.ExecutorKind("cobol"),
			status:    domain.TaskStatusFailure,
			errSubstr: "unknown executor kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			r := newRunner(store, nil, time.Minute)
			job := dispatch.TaskJob{
				RunID:    uuid.New(),
				TaskName: "task",
				Executor: tt.executor,
				Params:   tt.params,
			}

			status, err := r.Run(context.Background(), uuid.New(), job)
			require.NoError(t, err)
			assert.Equal(t, tt.status, status)

			inst := lastInstance(t, store, job.RunID)
			assert.Equal(t, tt.status, inst.Status)
			assert.NotNil(t, inst.CompletedAt)
			if tt.errSubstr != "" {
				assert.Contains(t, inst.ErrorMessage(), tt.errSubstr)
			} else {
				assert.Empty(t, inst.ErrorMessage())
			}
			if tt.check != nil {
				tt.check(t, inst.Result)
			}
		})
	}
}

func TestRunner_DefaultTimeout(t *testing.T) {
	requireTool(t, "sh")
	store := memory.New()
	r := newRunner(store, nil, 100*time.Millisecond)

	runID := uuid.New()
	status, err := r.Run(context.Background(), uuid.New(), dispatch.TaskJob{
		RunID:    runID,
		TaskName: "slow",
		Executor: domain.ExecutorShell,
		Params:   map[string]any{"command": "sleep 5"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailure, status)
	inst := lastInstance(t, store, runID)
	assert.Contains(t, inst.ErrorMessage(), "execution timeout")
}

func TestRunner_RecordsDispatchID(t *testing.T) {
	store := memory.New()
	r := newRunner(store, nil, 0)

	jobID := uuid.New()
	runID := uuid.New()
	_, err := r.Run(context.Background(), jobID, dispatch.TaskJob{RunID: runID, TaskName: "t", Executor: domain.ExecutorScript})
	require.NoError(t, err)

	inst := lastInstance(t, store, runID)
	assert.Equal(t, jobID.String(), inst.DispatchID)
	assert.Equal(t, domain.ExecutorScript, inst.Executor)
}

// recordingCompleter запоминает вызовы Complete.
type recordingCompleter struct {
	mu    sync.Mutex
	calls []domain.TaskStatus
	err   error
}

func (c *recordingCompleter) Complete(_ context.Context, _, _ uuid.UUID, status domain.TaskStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, status)
	return c.err
}

// brokenTracker — tracker, у которого все записи падают.
type brokenTracker struct{}

func (brokenTracker) Begin(context.Context, repo.BeginRequest) (uuid.UUID, error) {
	return uuid.Nil, errors.New("db down")
}

func (brokenTracker) Finish(context.Context, uuid.UUID, string, domain.TaskStatus, map[string]any) error {
	return errors.New("db down")
}

func TestRunner_CompletesEvenWhenTrackerFails(t *testing.T) {
	completer := &recordingCompleter{}
	r := NewRunner(RunnerConfig{Tasks: brokenTracker{}, Completer: completer})

	barrierID := uuid.New()
	status, err := r.Run(context.Background(), uuid.New(), dispatch.TaskJob{
		RunID:     uuid.New(),
		TaskName:  "t",
		Executor:  domain.ExecutorScript,
		BarrierID: &barrierID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusSuccess, status)
	assert.Equal(t, []domain.TaskStatus{domain.TaskStatusSuccess}, completer.calls)
}

func TestRunner_CompleteErrorIsReturned(t *testing.T) {
	completer := &recordingCompleter{err: errors.New("broker down")}
	r := newRunner(memory.New(), completer, 0)

	barrierID := uuid.New()
	_, err := r.Run(context.Background(), uuid.New(), dispatch.TaskJob{
		RunID:     uuid.New(),
		TaskName:  "t",
		Executor:  domain.ExecutorShell,
		BarrierID: &barrierID,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, []domain.TaskStatus{domain.TaskStatusFailure}, completer.calls)
}

func TestRunner_StandaloneSkipsBarrier(t *testing.T) {
	completer := &recordingCompleter{}
	r := newRunner(memory.New(), completer, 0)

	_, err := r.Run(context.Background(), uuid.New(), dispatch.TaskJob{
		RunID:    uuid.New(),
		TaskName: "t",
		Executor: domain.ExecutorScript,
	})
	require.NoError(t, err)
	assert.Empty(t, completer.calls)
}

func TestRunner_ClosesBarrier(t *testing.T) {
	store := memory.New()
	local := dispatch.NewLocal(context.Background(), store.Barriers(), nil)
	r := newRunner(store, local, 0)

	taskQueue := string(mq.TaskQueue(domain.ExecutorScript))
	stepQueue := string(mq.QueueRunsSteps)
	local.Handle(taskQueue, r.HandleJob)

	var fired atomic.Int32
	local.Handle(stepQueue, func(context.Context, dispatch.Job) error {
		fired.Add(1)
		return nil
	})

	runID := uuid.New()
	names := []string{"a", "b", "c"}
	barrierID := dispatch.BarrierID(runID, nil, nil)

	members := make([]dispatch.Message, 0, len(names))
	for _, name := range names {
		job, err := dispatch.NewTaskJob(dispatch.MemberJobID(barrierID, name), dispatch.TaskJob{
			RunID:     runID,
			TaskName:  name,
			Executor:  domain.ExecutorScript,
			BarrierID: &barrierID,
		})
		require.NoError(t, err)
		members = append(members, dispatch.Message{Queue: taskQueue, Job: job})
	}
	cont, err := dispatch.NewStepJob(dispatch.ContinuationID(barrierID), dispatch.StepJob{RunID: runID, Completed: names})
	require.NoError(t, err)

	require.NoError(t, local.Chord(context.Background(), dispatch.Chord{
		ID:           barrierID,
		RunID:        runID,
		Members:      members,
		Continuation: dispatch.Message{Queue: stepQueue, Job: cont},
	}))
	local.Wait()

	assert.Equal(t, int32(1), fired.Load())

	outcomes, err := store.Tasks().Outcomes(context.Background(), runID)
	require.NoError(t, err)
	assert.Len(t, outcomes, len(names))
	for _, name := range names {
		assert.Equal(t, domain.TaskStatusSuccess, outcomes[name], name)
	}
}

func TestRunner_HandleJobBadPayload(t *testing.T) {
	r := newRunner(memory.New(), nil, 0)

	err := r.HandleJob(context.Background(), dispatch.Job{
		ID:      uuid.New(),
		Type:    mq.MessageTypeTaskDispatch,
		Payload: json.RawMessage(`{"run_id": 42}`),
	})
	assert.ErrorIs(t, err, mq.ErrPermanent)

	err = r.HandleJob(context.Background(), dispatch.Job{
		ID:      uuid.New(),
		Type:    mq.MessageTypeRunStep,
		Payload: json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, mq.ErrPermanent)
}
