package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/dispatch"
	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/mq"
	"github.com/shaiso/zuriflow/internal/repo"
	"github.com/shaiso/zuriflow/internal/steps"
	"github.com/shaiso/zuriflow/internal/telemetry"
)

// TaskTracker — запись task instances.
type TaskTracker interface {
	Begin(ctx context.Context, req repo.BeginRequest) (uuid.UUID, error)
	Finish(ctx context.Context, runID uuid.UUID, taskName string, status domain.TaskStatus, result map[string]any) error
}

// Completer сообщает barrier'у о завершении участника.
type Completer interface {
	Complete(ctx context.Context, barrierID, jobID uuid.UUID, status domain.TaskStatus) error
}

// paramTimeout — таймаут задачи в секундах.
const paramTimeout = "timeout_sec"

// Runner выполняет одну доставленную задачу.
type Runner struct {
	tasks     TaskTracker
	completer Completer
	executors Executors
	timeout   time.Duration
	logger    *slog.Logger
}

// RunnerConfig — конфигурация Runner.
type RunnerConfig struct {
	Tasks     TaskTracker
	Completer Completer

	// Executors — nil означает DefaultExecutors(nil).
	Executors Executors

	// DefaultTimeout — таймаут, если params.timeout_sec не задан. 0 — без таймаута.
	DefaultTimeout time.Duration

	Logger *slog.Logger
}

// NewRunner создаёт Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	executors := cfg.Executors
	if executors == nil {
		executors = DefaultExecutors(nil)
	}
	return &Runner{
		tasks:     cfg.Tasks,
		completer: cfg.Completer,
		executors: executors,
		timeout:   cfg.DefaultTimeout,
		logger:    logger.With("component", "worker"),
	}
}

// Run выполняет задачу и возвращает итоговый статус.
//
// Ошибки tracker'а только логируются. Ошибка возвращается, если
// не удалось сообщить barrier'у о завершении: тогда доставку нужно повторить.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID, job dispatch.TaskJob) (status domain.TaskStatus, err error) {
	logger := telemetry.WithTaskName(telemetry.WithRunID(r.logger, job.RunID.String()), job.TaskName).
		With("job_id", jobID, "executor", job.Executor)

	if job.BarrierID != nil {
		barrierID := *job.BarrierID
		defer func() {
			if cerr := r.completer.Complete(ctx, barrierID, jobID, status); cerr != nil {
				logger.Error("failed to complete barrier member", "barrier_id", barrierID, "error", cerr)
				err = fmt.Errorf("complete barrier %s: %w", barrierID, cerr)
			}
		}()
	}

	if _, berr := r.tasks.Begin(ctx, repo.BeginRequest{
		RunID:      job.RunID,
		TaskName:   job.TaskName,
		Executor:   job.Executor,
		DispatchID: jobID.String(),
	}); berr != nil {
		logger.Error("failed to record task start", "error", berr)
	}

	logger.Info("task started")
	started := time.Now()

	result, execErr := r.execute(ctx, job)

	status = domain.TaskStatusSuccess
	if execErr != nil {
		status = domain.TaskStatusFailure
		result = failureResult(result, execErr)
	}
	if result == nil {
		result = make(map[string]any)
	}

	elapsed := time.Since(started)
	telemetry.TasksExecutedTotal.WithLabelValues(job.Executor.String(), string(status)).Inc()
	telemetry.TaskDuration.WithLabelValues(job.Executor.String()).Observe(elapsed.Seconds())

	if ferr := r.tasks.Finish(ctx, job.RunID, job.TaskName, status, result); ferr != nil {
		logger.Error("failed to record task end", "status", status, "error", ferr)
	}

	if execErr != nil {
		logger.Warn("task failed", "duration", elapsed, "error", execErr)
	} else {
		logger.Info("task succeeded", "duration", elapsed)
	}
	return status, nil
}

// execute запускает executor с таймаутом и перехватом panic.
func (r *Runner) execute(ctx context.Context, job dispatch.TaskJob) (result map[string]any, err error) {
	exec, err := r.executors.Get(job.Executor)
	if err != nil {
		return nil, err
	}

	timeout := r.timeout
	if sec := steps.ParamInt(job.Params, paramTimeout); sec > 0 {
		timeout = time.Duration(sec) * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			result, err = nil, fmt.Errorf("%w: %v", ErrTaskPanicked, p)
		}
	}()

	result, err = exec.Execute(ctx, ExecRequest{
		RunID:    job.RunID,
		TaskName: job.TaskName,
		Params:   job.Params,
	})
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %v", ErrExecutionTimeout, timeout, err)
	}
	return result, err
}

// failureResult добавляет "error" к частичному результату.
func failureResult(partial map[string]any, err error) map[string]any {
	out := make(map[string]any, len(partial)+1)
	maps.Copy(out, partial)
	out["error"] = err.Error()
	return out
}

// HandleJob разбирает job задачи и выполняет его.
func (r *Runner) HandleJob(ctx context.Context, job dispatch.Job) error {
	task, err := job.Task()
	if err != nil {
		return fmt.Errorf("%w: %w", mq.ErrPermanent, err)
	}
	_, err = r.Run(ctx, job.ID, task)
	return err
}

// HandleDelivery — обработчик очередей tasks.<kind>.
func (r *Runner) HandleDelivery(ctx context.Context, d *mq.Delivery) error {
	job, err := dispatch.DecodeDelivery(d)
	if err != nil {
		return err
	}
	return r.HandleJob(ctx, job)
}
