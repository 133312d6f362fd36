package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/dispatch"
	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/mq"
	"github.com/shaiso/zuriflow/internal/repo"
	"github.com/shaiso/zuriflow/internal/telemetry"
)

// Trigger запускает runs и standalone задачи.
type Trigger struct {
	definitions DefinitionStore
	runs        RunStore
	standalone  StandaloneStore
	substrate   dispatch.Substrate
	logger      *slog.Logger
}

// TriggerConfig — зависимости Trigger.
type TriggerConfig struct {
	Definitions DefinitionStore
	Runs        RunStore
	Standalone  StandaloneStore
	Substrate   dispatch.Substrate
	Logger      *slog.Logger
}

// NewTrigger создаёт Trigger.
func NewTrigger(cfg TriggerConfig) *Trigger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		definitions: cfg.Definitions,
		runs:        cfg.Runs,
		standalone:  cfg.Standalone,
		substrate:   cfg.Substrate,
		logger:      logger.With("component", "trigger"),
	}
}

// Start создаёт run definition и отправляет первый шаг с пустым completed.
// Если шаг не удалось отправить, run сразу завершается FAILURE.
func (t *Trigger) Start(ctx context.Context, definitionID uuid.UUID) (*domain.Run, error) {
	if _, err := t.definitions.Get(ctx, definitionID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, definitionID)
		}
		return nil, fmt.Errorf("get definition: %w", err)
	}

	run, err := t.runs.Create(ctx, definitionID)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	logger := telemetry.WithRunID(t.logger, run.ID.String())

	job, err := dispatch.NewStepJob(uuid.New(), StepRequest{
		RunID:        run.ID,
		DefinitionID: definitionID,
	})
	if err == nil {
		err = t.substrate.Send(ctx, string(mq.QueueRunsSteps), job)
	}
	if err != nil {
		reason := dispatchReason(err)
		if _, tErr := t.runs.Transition(ctx, run.ID, domain.RunStatusFailure, reason); tErr != nil {
			logger.Error("failed to mark undispatched run", "error", tErr)
		}
		return nil, fmt.Errorf("%w: first step of run %s: %v", ErrDispatchFailed, run.ID, err)
	}

	logger.Info("run started", "definition_id", definitionID)
	return run, nil
}

// StandaloneDispatch — отправленная standalone задача.
type StandaloneDispatch struct {
	// RunID — синтетический run id, под которым пишутся instances.
	RunID uuid.UUID `json:"run_id"`

	// DispatchID — id job в substrate.
	DispatchID uuid.UUID `json:"dispatch_id"`
}

// RunStandalone отправляет standalone задачу с параметрами поверх default_params.
func (t *Trigger) RunStandalone(ctx context.Context, taskID uuid.UUID, overrides map[string]any) (*StandaloneDispatch, error) {
	task, err := t.standalone.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("get standalone task: %w", err)
	}

	out := &StandaloneDispatch{RunID: uuid.New(), DispatchID: uuid.New()}

	job, err := dispatch.NewTaskJob(out.DispatchID, dispatch.TaskJob{
		RunID:    out.RunID,
		TaskName: task.TaskName,
		Executor: task.Executor,
		Params:   task.MergeParams(overrides),
	})
	if err != nil {
		return nil, err
	}

	if err := t.substrate.Send(ctx, string(mq.TaskQueue(task.Executor)), job); err != nil {
		return nil, fmt.Errorf("%w: standalone task %s: %v", ErrDispatchFailed, taskID, err)
	}

	telemetry.TasksDispatchedTotal.WithLabelValues(task.Executor.String()).Inc()
	t.logger.Info("standalone task dispatched",
		"task_name", task.TaskName,
		"run_id", out.RunID,
		"job_id", out.DispatchID,
	)
	return out, nil
}
