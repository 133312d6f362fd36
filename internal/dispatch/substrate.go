package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/repo"
)

// Substrate — транспорт jobs с поддержкой fan-out/join.
type Substrate interface {
	// Send кладёт job в очередь queue.
	Send(ctx context.Context, queue string, job Job) error

	// Chord регистрирует barrier и рассылает участников.
	// Повторная регистрация разосланного barrier возвращает ErrChordExists.
	// Если рассылка прервалась, незавершённые участники рассылаются снова.
	Chord(ctx context.Context, chord Chord) error

	// Complete отмечает участника завершённым. Последний участник
	// отправляет continuation ровно один раз.
	Complete(ctx context.Context, barrierID, jobID uuid.UUID, status domain.TaskStatus) error

	// Flush повторяет отправку continuation закрытого barrier'а,
	// если предыдущая отправка не удалась.
	Flush(ctx context.Context, barrierID uuid.UUID) error
}

// Chord — batch с continuation.
type Chord struct {
	ID           uuid.UUID
	RunID        uuid.UUID
	Members      []Message
	Continuation Message
}

// BarrierStore — хранилище barrier'ов (repo.BarrierRepo, memory.Barriers).
type BarrierStore interface {
	Create(ctx context.Context, b *domain.Barrier) error
	Get(ctx context.Context, barrierID uuid.UUID) (*domain.Barrier, error)
	MarkDispatched(ctx context.Context, barrierID uuid.UUID) error
	MarkDone(ctx context.Context, barrierID, jobID uuid.UUID, status domain.TaskStatus) error
	Claim(ctx context.Context, barrierID uuid.UUID) (json.RawMessage, bool, error)
	Release(ctx context.Context, barrierID uuid.UUID) error
}

// joiner — общая логика barrier'а для Broker и Local.
type joiner struct {
	store  BarrierStore
	send   func(ctx context.Context, msg Message) error
	logger *slog.Logger
}

func (j *joiner) chord(ctx context.Context, c Chord) error {
	if len(c.Members) == 0 {
		return ErrEmptyChord
	}

	continuation, err := json.Marshal(c.Continuation)
	if err != nil {
		return fmt.Errorf("marshal continuation: %w", err)
	}

	barrier := &domain.Barrier{
		ID:           c.ID,
		RunID:        c.RunID,
		Continuation: continuation,
		Members:      make([]domain.BarrierMember, 0, len(c.Members)),
		CreatedAt:    time.Now().UTC(),
	}
	for _, m := range c.Members {
		barrier.Members = append(barrier.Members, domain.BarrierMember{
			JobID:    m.Job.ID,
			TaskName: m.Job.Name,
		})
	}

	if err := j.store.Create(ctx, barrier); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return j.resume(ctx, c)
		}
		return fmt.Errorf("register barrier: %w", err)
	}

	if err := j.sendMembers(ctx, c, c.Members); err != nil {
		return err
	}

	j.logger.Debug("chord dispatched",
		"barrier_id", c.ID,
		"run_id", c.RunID,
		"members", len(c.Members),
	)
	return nil
}

// resume досылает участников barrier'а, рассылка которого прервалась
// (процесс упал между Create и последним send).
func (j *joiner) resume(ctx context.Context, c Chord) error {
	existing, err := j.store.Get(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("get barrier: %w", err)
	}
	if existing.IsDispatched() {
		return fmt.Errorf("%w: %s", ErrChordExists, c.ID)
	}

	done := make(map[uuid.UUID]bool, len(existing.Members))
	for _, m := range existing.Members {
		if m.DoneAt != nil {
			done[m.JobID] = true
		}
	}
	pending := make([]Message, 0, len(c.Members))
	for _, m := range c.Members {
		if !done[m.Job.ID] {
			pending = append(pending, m)
		}
	}

	if err := j.sendMembers(ctx, c, pending); err != nil {
		return err
	}

	j.logger.Warn("chord resumed",
		"barrier_id", c.ID,
		"run_id", c.RunID,
		"resent", len(pending),
	)
	return nil
}

// sendMembers рассылает участников и отмечает barrier разосланным.
func (j *joiner) sendMembers(ctx context.Context, c Chord, members []Message) error {
	for _, m := range members {
		if err := j.send(ctx, m); err != nil {
			return fmt.Errorf("send %s to %s: %w", m.Job.Name, m.Queue, err)
		}
	}
	// Участники уже в очереди: ошибка отметки приведёт лишь к повторной рассылке при replay.
	if err := j.store.MarkDispatched(ctx, c.ID); err != nil {
		j.logger.Error("failed to mark barrier dispatched", "barrier_id", c.ID, "error", err)
	}
	return nil
}

func (j *joiner) complete(ctx context.Context, barrierID, jobID uuid.UUID, status domain.TaskStatus) error {
	if err := j.store.MarkDone(ctx, barrierID, jobID, status); err != nil {
		return fmt.Errorf("mark member done: %w", err)
	}
	return j.flush(ctx, barrierID)
}

// flush забирает barrier и отправляет continuation. Если barrier ещё
// открыт или уже отправлен, ничего не делает.
func (j *joiner) flush(ctx context.Context, barrierID uuid.UUID) error {
	raw, ok, err := j.store.Claim(ctx, barrierID)
	if err != nil {
		return fmt.Errorf("claim barrier: %w", err)
	}
	if !ok {
		return nil
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		// Повтор не поможет, barrier остаётся закрытым.
		j.logger.Error("corrupt continuation", "barrier_id", barrierID, "error", err)
		return fmt.Errorf("unmarshal continuation: %w", err)
	}

	if err := j.send(ctx, msg); err != nil {
		if relErr := j.store.Release(ctx, barrierID); relErr != nil {
			j.logger.Error("failed to release barrier", "barrier_id", barrierID, "error", relErr)
		}
		return fmt.Errorf("send continuation: %w", err)
	}

	j.logger.Debug("barrier fired", "barrier_id", barrierID, "job_id", msg.Job.ID)
	return nil
}
