package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/orchestrator"
	"github.com/shaiso/zuriflow/internal/telemetry"
)

// Значения по умолчанию.
const (
	defaultTick      = 10 * time.Second
	defaultBatchSize = 100
)

// ScheduleStore — чтение и обновление расписаний.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	Update(ctx context.Context, schedule *domain.Schedule) error
}

// Launcher запускает цель расписания (orchestrator.Trigger).
type Launcher interface {
	Start(ctx context.Context, definitionID uuid.UUID) (*domain.Run, error)
	RunStandalone(ctx context.Context, taskID uuid.UUID, overrides map[string]any) (*orchestrator.StandaloneDispatch, error)
}

// Leader — выбор единственного активного scheduler'а (repo.AdvisoryLock).
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
}

// Scheduler запускает цели расписаний, у которых подошёл next_due_at.
type Scheduler struct {
	schedules ScheduleStore
	launcher  Launcher
	leader    Leader
	tick      time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules ScheduleStore
	Launcher  Launcher

	// Leader — nil означает, что процесс всегда лидер.
	Leader Leader

	Tick      time.Duration // период Run (default: 10s)
	BatchSize int           // расписаний за один тик (default: 100)
	Logger    *slog.Logger
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	tick := cfg.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		schedules: cfg.Schedules,
		launcher:  cfg.Launcher,
		leader:    cfg.Leader,
		tick:      tick,
		batchSize: batchSize,
		logger:    logger.With("component", "scheduler"),
		now:       time.Now,
	}
}

// Run вызывает Tick каждые cfg.Tick, пока процесс лидер, до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler", "tick", s.tick, "batch_size", s.batchSize)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	var leading bool
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}

		if s.leader != nil {
			ok, err := s.leader.TryAcquire(ctx)
			if err != nil {
				s.logger.Warn("leader lock check failed", "error", err)
				ok = false
			}
			if ok != leading {
				s.logger.Info("leadership changed", "leader", ok)
				leading = ok
			}
			if !ok {
				continue
			}
		}

		if err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
	}
}

// Tick обрабатывает расписания с next_due_at <= now.
//
// Ошибка одного расписания не блокирует обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now().UTC()

	due, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	var fired int
	for i := range due {
		sched := &due[i]
		if err := s.fire(ctx, sched, now); err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			continue
		}
		fired++
	}

	s.logger.Info("scheduler tick completed", "due", len(due), "fired", fired)
	return nil
}

// fire запускает цель расписания и сдвигает next_due_at.
func (s *Scheduler) fire(ctx context.Context, sched *domain.Schedule, now time.Time) error {
	logger := s.logger.With("schedule_id", sched.ID)

	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		// Некорректное правило: выключаем, иначе оно будет due на каждом тике.
		logger.Warn("invalid schedule rule, disabling", "error", err)
		return s.disable(ctx, sched, now)
	}

	runID, target, err := s.launch(ctx, sched)
	switch {
	case errors.Is(err, orchestrator.ErrDefinitionNotFound), errors.Is(err, orchestrator.ErrTaskNotFound):
		logger.Warn("schedule target not found, disabling", "error", err)
		return s.disable(ctx, sched, now)
	case errors.Is(err, orchestrator.ErrDispatchFailed):
		// Run уже помечен FAILURE. Без сдвига каждый тик порождал бы новый.
		sched.Postpone(nextDue)
		if uerr := s.schedules.Update(ctx, sched); uerr != nil {
			logger.Error("failed to postpone schedule", "error", uerr)
		}
		return fmt.Errorf("launch %s: %w", target, err)
	case err != nil:
		return fmt.Errorf("launch %s: %w", target, err)
	}

	telemetry.SchedulesFiredTotal.WithLabelValues(target).Inc()
	logger.Info("schedule fired", "target", target, "run_id", runID, "next_due_at", nextDue)

	sched.RecordRun(runID, nextDue)
	if err := s.schedules.Update(ctx, sched); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// launch запускает definition или standalone задачу.
// Возвращает run id (для задачи — синтетический) и тип цели.
func (s *Scheduler) launch(ctx context.Context, sched *domain.Schedule) (uuid.UUID, string, error) {
	if sched.DefinitionID != nil {
		run, err := s.launcher.Start(ctx, *sched.DefinitionID)
		if err != nil {
			return uuid.Nil, "definition", err
		}
		return run.ID, "definition", nil
	}
	if sched.TaskID != nil {
		out, err := s.launcher.RunStandalone(ctx, *sched.TaskID, nil)
		if err != nil {
			return uuid.Nil, "task", err
		}
		return out.RunID, "task", nil
	}
	return uuid.Nil, "", domain.ErrScheduleTarget
}

func (s *Scheduler) disable(ctx context.Context, sched *domain.Schedule, now time.Time) error {
	sched.Enabled = false
	sched.UpdatedAt = now
	if err := s.schedules.Update(ctx, sched); err != nil {
		return fmt.Errorf("disable schedule: %w", err)
	}
	return nil
}
