package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/zuriflow/internal/domain"
)

// RunRepo — хранилище состояния runs.
//
// Финальный статус записывается только из RUNNING.
// Повторный переход — no-op: Transition возвращает changed=false без ошибки.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

const runColumns = `id, definition_id, status, error, started_at, completed_at`

// Create создаёт run в статусе RUNNING.
func (r *RunRepo) Create(ctx context.Context, definitionID uuid.UUID) (*domain.Run, error) {
	run := domain.NewRun(definitionID)

	query := `
		INSERT INTO workflow_runs (id, definition_id, status, started_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.pool.Exec(ctx, query, run.ID, run.DefinitionID, run.Status, run.StartedAt); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// Get возвращает run по ID.
func (r *RunRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM workflow_runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// Transition переводит run из RUNNING в финальный статус.
//
// Если run уже завершён, ничего не меняется (completed_at сохраняется)
// и возвращается changed=false. Для неизвестного run — ErrNotFound.
func (r *RunRepo) Transition(ctx context.Context, id uuid.UUID, status domain.RunStatus, reason string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("%w: transition to %s", ErrInvalidState, status)
	}

	query := `
		UPDATE workflow_runs
		SET status = $2, error = $3, completed_at = $4
		WHERE id = $1 AND status = 'RUNNING'
	`
	result, err := r.pool.Exec(ctx, query, id, status, nullString(reason), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("transition run: %w", err)
	}
	if result.RowsAffected() == 1 {
		return true, nil
	}

	// Строка не обновлена: run либо уже завершён, либо не существует.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM workflow_runs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check run: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// List возвращает список runs с фильтрацией.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE ($1::uuid IS NULL OR definition_id = $1)
		  AND ($2::text IS NULL OR status = $2::run_status)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4
	`
	return r.query(ctx, "list runs", query,
		nullUUID(filter.DefinitionID),
		nullString(string(filter.Status)),
		limitOrDefault(filter.Limit),
		filter.Offset,
	)
}

// ListRunning возвращает runs в RUNNING, начатые раньше before (старые первыми).
func (r *RunRepo) ListRunning(ctx context.Context, before time.Time, limit int) ([]domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE status = 'RUNNING' AND started_at < $1
		ORDER BY started_at ASC
		LIMIT $2
	`
	return r.query(ctx, "list running runs", query, before, limitOrDefault(limit))
}

func (r *RunRepo) query(ctx context.Context, op, query string, args ...any) ([]domain.Run, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// --- Helpers ---

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	DefinitionID *uuid.UUID
	Status       domain.RunStatus
	Limit        int
	Offset       int
}

// scanRun сканирует одну строку в Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var runError *string

	err := row.Scan(
		&run.ID,
		&run.DefinitionID,
		&run.Status,
		&runError,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if runError != nil {
		run.Error = *runError
	}
	return &run, nil
}
