package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/zuriflow/internal/domain"
)

// DefinitionRepo — репозиторий definitions.
//
// Definitions неизменяемы: Update отсутствует.
type DefinitionRepo struct {
	pool *pgxpool.Pool
}

// NewDefinitionRepo создаёт новый DefinitionRepo.
func NewDefinitionRepo(pool *pgxpool.Pool) *DefinitionRepo {
	return &DefinitionRepo{pool: pool}
}

// Create сохраняет definition.
func (r *DefinitionRepo) Create(ctx context.Context, def *domain.Definition) error {
	specJSON, err := json.Marshal(def.Spec)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (id, name, definition, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err = r.pool.Exec(ctx, query, def.ID, def.Name, specJSON, def.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert definition: %w", err)
	}
	return nil
}

// Get возвращает definition по ID.
func (r *DefinitionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Definition, error) {
	query := `
		SELECT id, name, definition, created_at
		FROM workflow_definitions
		WHERE id = $1
	`
	return scanDefinition(r.pool.QueryRow(ctx, query, id))
}

// List возвращает definitions, новые первыми.
func (r *DefinitionRepo) List(ctx context.Context, limit, offset int) ([]domain.Definition, error) {
	query := `
		SELECT id, name, definition, created_at
		FROM workflow_definitions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.pool.Query(ctx, query, limitOrDefault(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var defs []domain.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

// Delete удаляет definition. Runs остаются: следующий шаг такого run завершит его FAILURE.
func (r *DefinitionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM workflow_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete definition: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanDefinition сканирует одну строку в Definition.
// pgx.Rows тоже реализует pgx.Row, поэтому хелпер общий.
func scanDefinition(row pgx.Row) (*domain.Definition, error) {
	var def domain.Definition
	var specJSON []byte

	err := row.Scan(&def.ID, &def.Name, &specJSON, &def.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan definition: %w", err)
	}

	if err := json.Unmarshal(specJSON, &def.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return &def, nil
}
