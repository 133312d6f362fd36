package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/repo"
)

// RunStore — хранилище состояния runs (repo.RunRepo, memory.Runs).
type RunStore interface {
	Create(ctx context.Context, definitionID uuid.UUID) (*domain.Run, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	Transition(ctx context.Context, id uuid.UUID, status domain.RunStatus, reason string) (bool, error)
	ListRunning(ctx context.Context, before time.Time, limit int) ([]domain.Run, error)
}

// TaskTracker — чтение исходов задач run (repo.TaskRepo, memory.Tasks).
type TaskTracker interface {
	Outcomes(ctx context.Context, runID uuid.UUID) (map[string]domain.TaskStatus, error)
}

// MemberLedger — исходы участников barriers run (repo.BarrierRepo, memory.Barriers).
// Члены barrier знают статус задачи, даже если worker не смог записать instance.
type MemberLedger interface {
	MemberOutcomes(ctx context.Context, runID uuid.UUID) (map[string]domain.TaskStatus, error)
}

// DefinitionStore — чтение definitions.
type DefinitionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Definition, error)
}

// StandaloneStore — чтение standalone задач.
type StandaloneStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.StandaloneTask, error)
}

// BarrierReader — чтение barriers для watchdog.
type BarrierReader interface {
	Get(ctx context.Context, barrierID uuid.UUID) (*domain.Barrier, error)
	HasOpen(ctx context.Context, runID uuid.UUID) (bool, error)
	ListStalled(ctx context.Context, before time.Time, limit int) ([]repo.StalledBarrier, error)
}
