package orchestrator

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/zuriflow/internal/mq"
)

// Orchestrator — сервис: consumer очереди runs.steps и watchdog.
type Orchestrator struct {
	conn        *mq.Connection
	coordinator *Coordinator
	watchdog    *Watchdog
	prefetch    int
	logger      *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	Conn        *mq.Connection
	Coordinator *Coordinator
	Watchdog    *Watchdog

	// Prefetch — шагов в обработке на consumer (default: 10).
	Prefetch int

	Logger *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		conn:        cfg.Conn,
		coordinator: cfg.Coordinator,
		watchdog:    cfg.Watchdog,
		prefetch:    prefetch,
		logger:      logger,
	}
}

// Run запускает consumer и watchdog и блокируется до отмены ctx
// или ошибки одного из них.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("starting orchestrator", "prefetch", o.prefetch)

	consumer := mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
		Queue:    mq.QueueRunsSteps,
		Handler:  o.coordinator.HandleDelivery,
		Prefetch: o.prefetch,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Start(ctx) })
	if o.watchdog != nil {
		g.Go(func() error { return o.watchdog.Run(ctx) })
	}

	err := g.Wait()
	o.logger.Info("orchestrator stopped")
	return err
}
