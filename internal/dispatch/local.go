package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/domain"
)

// HandlerFunc обрабатывает job из очереди.
type HandlerFunc func(ctx context.Context, job Job) error

// Local — Substrate внутри процесса: каждый job выполняется в своей горутине.
type Local struct {
	ctx context.Context

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	wg sync.WaitGroup
	joiner
}

// NewLocal создаёт Local. Jobs выполняются с контекстом ctx.
func NewLocal(ctx context.Context, barriers BarrierStore, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Local{
		ctx:      ctx,
		handlers: make(map[string]HandlerFunc),
	}
	l.joiner = joiner{
		store:  barriers,
		send:   l.enqueue,
		logger: logger.With("component", "dispatch"),
	}
	return l
}

// Handle регистрирует обработчик очереди.
func (l *Local) Handle(queue string, h HandlerFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[queue] = h
}

func (l *Local) enqueue(_ context.Context, msg Message) error {
	l.mu.RLock()
	h, ok := l.handlers[msg.Queue]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, msg.Queue)
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := h(l.ctx, msg.Job); err != nil {
			l.logger.Error("job failed",
				"queue", msg.Queue,
				"job_id", msg.Job.ID,
				"error", err,
			)
		}
	}()
	return nil
}

// Send запускает job.
func (l *Local) Send(ctx context.Context, queue string, job Job) error {
	return l.enqueue(ctx, Message{Queue: queue, Job: job})
}

// Chord регистрирует barrier и запускает участников.
func (l *Local) Chord(ctx context.Context, chord Chord) error {
	return l.chord(ctx, chord)
}

// Complete отмечает участника и, если он последний, запускает continuation.
func (l *Local) Complete(ctx context.Context, barrierID, jobID uuid.UUID, status domain.TaskStatus) error {
	return l.complete(ctx, barrierID, jobID, status)
}

// Flush повторяет отправку continuation.
func (l *Local) Flush(ctx context.Context, barrierID uuid.UUID) error {
	return l.flush(ctx, barrierID)
}

// Wait ждёт завершения всех запущенных jobs, включая порождённые ими.
func (l *Local) Wait() {
	l.wg.Wait()
}
