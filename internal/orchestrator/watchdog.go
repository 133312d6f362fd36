package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/dispatch"
	"github.com/shaiso/zuriflow/internal/mq"
	"github.com/shaiso/zuriflow/internal/repo"
	"github.com/shaiso/zuriflow/internal/telemetry"
)

const (
	defaultPollInterval   = 30 * time.Second
	defaultStallWarnAfter = 15 * time.Minute
	defaultBatchSize      = 100
)

// Watchdog восстанавливает runs, у которых потерялся шаг.
//
// Runs не завершаются по таймауту: зависший barrier только логируется
// и учитывается в zuriflow_barriers_stalled.
type Watchdog struct {
	runs      RunStore
	tasks     TaskTracker
	barriers  BarrierReader
	substrate dispatch.Substrate

	interval   time.Duration
	stallAfter time.Duration
	batchSize  int

	now    func() time.Time
	logger *slog.Logger
}

// WatchdogConfig — конфигурация Watchdog.
type WatchdogConfig struct {
	Runs      RunStore
	Tasks     TaskTracker
	Barriers  BarrierReader
	Substrate dispatch.Substrate

	PollInterval   time.Duration // период sweep (default: 30s)
	StallWarnAfter time.Duration // порог предупреждения (default: 15m)
	BatchSize      int           // runs и barriers за один sweep (default: 100)

	Logger *slog.Logger
}

// NewWatchdog создаёт Watchdog.
func NewWatchdog(cfg WatchdogConfig) *Watchdog {
	w := &Watchdog{
		runs:       cfg.Runs,
		tasks:      cfg.Tasks,
		barriers:   cfg.Barriers,
		substrate:  cfg.Substrate,
		interval:   cfg.PollInterval,
		stallAfter: cfg.StallWarnAfter,
		batchSize:  cfg.BatchSize,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     cfg.Logger,
	}
	if w.interval <= 0 {
		w.interval = defaultPollInterval
	}
	if w.stallAfter <= 0 {
		w.stallAfter = defaultStallWarnAfter
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("component", "watchdog")
	return w
}

// Run выполняет sweep каждые PollInterval до отмены ctx.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// Sweep делает один проход:
//   - закрытые, но не отправленные barriers отправляются повторно;
//   - участники, задача которых уже завершена, отмечаются в barrier;
//   - barriers, открытые дольше StallWarnAfter, логируются;
//   - RUNNING runs без открытых barriers получают новый шаг.
func (w *Watchdog) Sweep(ctx context.Context) error {
	now := w.now()
	cutoff := now.Add(-w.interval)

	if err := w.sweepBarriers(ctx, now, cutoff); err != nil {
		return err
	}
	return w.sweepRuns(ctx, cutoff)
}

func (w *Watchdog) sweepBarriers(ctx context.Context, now, cutoff time.Time) error {
	barriers, err := w.barriers.ListStalled(ctx, cutoff, w.batchSize)
	if err != nil {
		return fmt.Errorf("list stalled barriers: %w", err)
	}

	stalled := 0
	for _, b := range barriers {
		if b.Open == 0 {
			if err := w.substrate.Flush(ctx, b.ID); err != nil {
				w.logger.Error("failed to flush barrier", "barrier_id", b.ID, "run_id", b.RunID, "error", err)
			}
			continue
		}

		open, err := w.reconcile(ctx, b)
		if err != nil {
			w.logger.Error("failed to reconcile barrier", "barrier_id", b.ID, "run_id", b.RunID, "error", err)
		}
		if open == 0 {
			continue
		}

		age := now.Sub(b.CreatedAt)
		if age >= w.stallAfter {
			stalled++
			w.logger.Warn("barrier stalled",
				"barrier_id", b.ID,
				"run_id", b.RunID,
				"open", open,
				"age", age.Round(time.Second),
			)
		}
	}

	telemetry.BarriersStalled.Set(float64(stalled))
	return nil
}

// reconcile отмечает открытых участников, у задачи которых уже есть
// финальный instance: Complete worker'а не дошёл до barrier'а.
// Возвращает число оставшихся открытых участников.
func (w *Watchdog) reconcile(ctx context.Context, sb repo.StalledBarrier) (int, error) {
	barrier, err := w.barriers.Get(ctx, sb.ID)
	if err != nil {
		return sb.Open, fmt.Errorf("get barrier: %w", err)
	}
	outcomes, err := w.tasks.Outcomes(ctx, sb.RunID)
	if err != nil {
		return sb.Open, fmt.Errorf("read task outcomes: %w", err)
	}

	open := 0
	for _, m := range barrier.Members {
		if m.DoneAt != nil {
			continue
		}
		status, ok := outcomes[m.TaskName]
		if !ok || !status.IsTerminal() {
			open++
			continue
		}
		if err := w.substrate.Complete(ctx, barrier.ID, m.JobID, status); err != nil {
			// MarkDone мог пройти, а отправка continuation нет: её повторит Flush.
			w.logger.Error("failed to complete barrier member",
				"barrier_id", barrier.ID,
				"task_name", m.TaskName,
				"error", err,
			)
			continue
		}
		w.logger.Warn("barrier member reconciled",
			"barrier_id", barrier.ID,
			"run_id", barrier.RunID,
			"task_name", m.TaskName,
			"status", status,
		)
	}
	return open, nil
}

func (w *Watchdog) sweepRuns(ctx context.Context, cutoff time.Time) error {
	runs, err := w.runs.ListRunning(ctx, cutoff, w.batchSize)
	if err != nil {
		return fmt.Errorf("list running runs: %w", err)
	}

	for _, run := range runs {
		open, err := w.barriers.HasOpen(ctx, run.ID)
		if err != nil {
			w.logger.Error("failed to check barriers", "run_id", run.ID, "error", err)
			continue
		}
		if open {
			continue
		}

		job, err := dispatch.NewStepJob(uuid.New(), StepRequest{RunID: run.ID, DefinitionID: run.DefinitionID})
		if err == nil {
			err = w.substrate.Send(ctx, string(mq.QueueRunsSteps), job)
		}
		if err != nil {
			w.logger.Error("failed to resend step", "run_id", run.ID, "error", err)
			continue
		}
		w.logger.Info("step resent", "run_id", run.ID)
	}
	return nil
}
