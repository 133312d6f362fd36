package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/dispatch"
	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/engine"
	"github.com/shaiso/zuriflow/internal/mq"
	"github.com/shaiso/zuriflow/internal/repo"
	"github.com/shaiso/zuriflow/internal/telemetry"
)

// StepRequest — сообщение шага: run и completed на момент отправки.
type StepRequest = dispatch.StepJob

// Coordinator выполняет один шаг run.
type Coordinator struct {
	runs        RunStore
	tasks       TaskTracker
	members     MemberLedger
	definitions DefinitionStore
	substrate   dispatch.Substrate
	logger      *slog.Logger
}

// CoordinatorConfig — зависимости Coordinator.
type CoordinatorConfig struct {
	Runs        RunStore
	Tasks       TaskTracker
	Members     MemberLedger
	Definitions DefinitionStore
	Substrate   dispatch.Substrate
	Logger      *slog.Logger
}

// NewCoordinator создаёт Coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		runs:        cfg.Runs,
		tasks:       cfg.Tasks,
		members:     cfg.Members,
		definitions: cfg.Definitions,
		substrate:   cfg.Substrate,
		logger:      logger.With("component", "coordinator"),
	}
}

// Step выполняет один шаг: завершает run или отправляет следующий batch.
//
// Ошибка возвращается только если шаг стоит повторить (недоступно хранилище)
// или run не существует. Все остальные исходы записываются в статус run.
func (c *Coordinator) Step(ctx context.Context, req StepRequest) error {
	logger := telemetry.WithRunID(c.logger, req.RunID.String())

	run, err := c.runs.Get(ctx, req.RunID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			telemetry.StepsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("%w: %s", ErrRunNotFound, req.RunID)
		}
		return fmt.Errorf("get run: %w", err)
	}

	if run.IsFinished() {
		logger.Debug("run already finished, step ignored", "status", run.Status)
		telemetry.StepsTotal.WithLabelValues("noop").Inc()
		return nil
	}

	def, err := c.definitions.Get(ctx, run.DefinitionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return c.finish(ctx, logger, run.ID, domain.RunStatusFailure, ErrDefinitionNotFound.Error())
		}
		return fmt.Errorf("get definition: %w", err)
	}

	outcomes, err := c.tasks.Outcomes(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("read task outcomes: %w", err)
	}
	members, err := c.members.MemberOutcomes(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("read barrier member outcomes: %w", err)
	}
	outcomes = mergeOutcomes(outcomes, members)

	progress := progressFrom(def.Spec.Tasks, outcomes, req.Completed)
	verdict := engine.ResolveProgress(def.Spec.Tasks, progress)

	logger.Debug("step resolved",
		"verdict", verdict.Kind,
		"completed", len(progress.Completed),
		"batch", verdict.Batch,
	)

	switch verdict.Kind {
	case engine.VerdictDone:
		telemetry.StepsTotal.WithLabelValues(verdict.Kind.String()).Inc()
		return c.finish(ctx, logger, run.ID, domain.RunStatusSuccess, "")

	case engine.VerdictStuck:
		telemetry.StepsTotal.WithLabelValues(verdict.Kind.String()).Inc()
		return c.finish(ctx, logger, run.ID, domain.RunStatusFailure, stuckReason(verdict))

	default:
		return c.dispatch(ctx, logger, run, def, progress, verdict.Batch)
	}
}

// dispatch отправляет batch одним chord'ом.
func (c *Coordinator) dispatch(ctx context.Context, logger *slog.Logger, run *domain.Run, def *domain.Definition, progress engine.Progress, batch []string) error {
	completed := names(progress.Completed)
	barrierID := dispatch.BarrierID(run.ID, completed, names(progress.Failed))

	chord := dispatch.Chord{
		ID:      barrierID,
		RunID:   run.ID,
		Members: make([]dispatch.Message, 0, len(batch)),
	}

	for _, name := range batch {
		spec := def.Spec.Tasks[name]
		job, err := dispatch.NewTaskJob(dispatch.MemberJobID(barrierID, name), dispatch.TaskJob{
			RunID:     run.ID,
			TaskName:  name,
			Executor:  spec.Executor,
			Params:    spec.Params,
			BarrierID: &barrierID,
		})
		if err != nil {
			return c.finish(ctx, logger, run.ID, domain.RunStatusFailure, dispatchReason(err))
		}
		chord.Members = append(chord.Members, dispatch.Message{
			Queue: string(mq.TaskQueue(spec.Executor)),
			Job:   job,
		})
	}

	next, err := dispatch.NewStepJob(dispatch.ContinuationID(barrierID), StepRequest{
		RunID:        run.ID,
		DefinitionID: run.DefinitionID,
		Completed:    completed,
	})
	if err != nil {
		return c.finish(ctx, logger, run.ID, domain.RunStatusFailure, dispatchReason(err))
	}
	chord.Continuation = dispatch.Message{Queue: string(mq.QueueRunsSteps), Job: next}

	err = c.substrate.Chord(ctx, chord)
	switch {
	case err == nil:
	case errors.Is(err, dispatch.ErrChordExists):
		// Повтор шага: batch уже отправлен.
		logger.Debug("batch already dispatched", "barrier_id", barrierID)
		telemetry.StepsTotal.WithLabelValues("noop").Inc()
		return nil
	default:
		logger.Error("failed to dispatch batch", "barrier_id", barrierID, "error", err)
		telemetry.StepsTotal.WithLabelValues("error").Inc()
		return c.finish(ctx, logger, run.ID, domain.RunStatusFailure, dispatchReason(err))
	}

	telemetry.StepsTotal.WithLabelValues(engine.VerdictReady.String()).Inc()
	for _, m := range chord.Members {
		telemetry.TasksDispatchedTotal.WithLabelValues(def.Spec.Tasks[m.Job.Name].Executor.String()).Inc()
	}

	logger.Info("batch dispatched",
		"barrier_id", barrierID,
		"tasks", batch,
	)
	return nil
}

// finish переводит run в финальный статус.
func (c *Coordinator) finish(ctx context.Context, logger *slog.Logger, runID uuid.UUID, status domain.RunStatus, reason string) error {
	changed, err := c.runs.Transition(ctx, runID, status, reason)
	if err != nil {
		return fmt.Errorf("transition run to %s: %w", status, err)
	}
	if !changed {
		logger.Warn("run already finished, transition skipped", "status", status, "reason", reason)
		return nil
	}

	telemetry.RunsFinishedTotal.WithLabelValues(string(status)).Inc()
	if status == domain.RunStatusSuccess {
		logger.Info("run succeeded")
	} else {
		logger.Warn("run failed", "reason", reason)
	}
	return nil
}

// HandleJob разбирает job шага и выполняет Step.
func (c *Coordinator) HandleJob(ctx context.Context, job dispatch.Job) error {
	req, err := job.Step()
	if err != nil {
		return fmt.Errorf("%w: %w", mq.ErrPermanent, err)
	}

	err = c.Step(ctx, req)
	if errors.Is(err, ErrRunNotFound) {
		return fmt.Errorf("%w: %w", mq.ErrPermanent, err)
	}
	return err
}

// HandleDelivery — обработчик очереди runs.steps.
func (c *Coordinator) HandleDelivery(ctx context.Context, d *mq.Delivery) error {
	job, err := dispatch.DecodeDelivery(d)
	if err != nil {
		return err
	}
	return c.HandleJob(ctx, job)
}

func stuckReason(v engine.Verdict) string {
	var b strings.Builder
	b.WriteString("stuck: pending tasks [")
	b.WriteString(strings.Join(v.Pending, ", "))
	b.WriteString("]")
	if len(v.Failed) > 0 {
		b.WriteString(", failed tasks [")
		b.WriteString(strings.Join(v.Failed, ", "))
		b.WriteString("]")
	}
	return b.String()
}

func dispatchReason(err error) string {
	return fmt.Sprintf("%s: %v", ErrDispatchFailed, err)
}
