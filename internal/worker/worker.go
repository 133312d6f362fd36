package worker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/mq"
)

// defaultPrefetch — задач в обработке на один consumer.
const defaultPrefetch = 4

// Worker потребляет очереди tasks.<kind> и передаёт задачи Runner'у.
//
// Workers масштабируются горизонтально: несколько экземпляров
// потребляют из одних и тех же очередей.
type Worker struct {
	conn     *mq.Connection
	runner   *Runner
	kinds    []domain.ExecutorKind
	prefetch int
	logger   *slog.Logger
}

// Config — конфигурация Worker.
type Config struct {
	Conn   *mq.Connection
	Runner *Runner

	// Kinds — очереди каких executor'ов слушать. Пустой список — все.
	Kinds []domain.ExecutorKind

	// Prefetch — задач в обработке на consumer (default: 4).
	Prefetch int

	Logger *slog.Logger
}

// New создаёт Worker.
func New(cfg Config) *Worker {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = domain.ExecutorKinds()
	}
	return &Worker{
		conn:     cfg.Conn,
		runner:   cfg.Runner,
		kinds:    kinds,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Run запускает по consumer'у на каждую очередь и блокируется до отмены ctx.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting worker", "executors", w.kinds, "prefetch", w.prefetch)

	g, ctx := errgroup.WithContext(ctx)
	for _, kind := range w.kinds {
		consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.TaskQueue(kind),
			Handler:  w.runner.HandleDelivery,
			Prefetch: w.prefetch,
		})
		g.Go(func() error { return consumer.Start(ctx) })
	}

	err := g.Wait()
	w.logger.Info("worker stopped")
	return err
}
