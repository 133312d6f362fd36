// ZuriFlow Worker — выполняет задачи runs и standalone задачи.
//
// Worker:
//   - Слушает очереди tasks.<executor> для разрешённых executor'ов
//   - Выполняет script, shell и binary задачи с таймаутом
//   - Пишет результат в task_instances
//   - Отмечает завершение в barrier'е
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/zuriflow/internal/config"
	"github.com/shaiso/zuriflow/internal/dispatch"
	"github.com/shaiso/zuriflow/internal/mq"
	"github.com/shaiso/zuriflow/internal/repo"
	"github.com/shaiso/zuriflow/internal/steps"
	"github.com/shaiso/zuriflow/internal/telemetry"
	"github.com/shaiso/zuriflow/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting zuriflow-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	broker := dispatch.NewBroker(mq.NewPublisher(mqConn, logger), repo.NewBarrierRepo(pool), logger)
	executors := worker.DefaultExecutors(steps.DefaultRegistry()).Only(cfg.Worker.Executors)

	runner := worker.NewRunner(worker.RunnerConfig{
		Tasks:          repo.NewTaskRepo(pool),
		Completer:      broker,
		Executors:      executors,
		DefaultTimeout: cfg.Worker.TaskTimeout,
		Logger:         logger,
	})

	w := worker.New(worker.Config{
		Conn:     mqConn,
		Runner:   runner,
		Kinds:    executors.Kinds(),
		Prefetch: cfg.Worker.Prefetch,
		Logger:   logger,
	})

	// HTTP: /healthz + /metrics
	addr := config.Addr(cfg.Ports.Worker)
	server := &http.Server{
		Addr:              addr,
		Handler:           telemetry.OpsHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped with error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("zuriflow-worker stopped")
}
