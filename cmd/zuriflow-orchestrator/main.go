// ZuriFlow Orchestrator — продвигает runs по графу задач.
//
// Orchestrator:
//   - Получает step jobs из очереди runs.steps
//   - Вычисляет следующий batch и публикует chord задач
//   - Завершает runs (SUCCESS, FAILURE, stuck)
//   - Watchdog пере-шагивает зависшие runs и предупреждает о старых barrier'ах
//
// Coordinator не хранит состояние между шагами, поэтому orchestrator'ов может быть несколько.
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
	"github.com/shaiso/zuriflow/internal/orchestrator"
	"github.com/shaiso/zuriflow/internal/repo"
	"github.com/shaiso/zuriflow/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting zuriflow-orchestrator")

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

	runs := repo.NewRunRepo(pool)
	tasks := repo.NewTaskRepo(pool)
	barriers := repo.NewBarrierRepo(pool)
	broker := dispatch.NewBroker(mq.NewPublisher(mqConn, logger), barriers, logger)

	coordinator := orchestrator.NewCoordinator(orchestrator.CoordinatorConfig{
		Runs:        runs,
		Tasks:       tasks,
		Members:     barriers,
		Definitions: repo.NewDefinitionRepo(pool),
		Substrate:   broker,
		Logger:      logger,
	})
	watchdog := orchestrator.NewWatchdog(orchestrator.WatchdogConfig{
		Runs:           runs,
		Tasks:          tasks,
		Barriers:       barriers,
		Substrate:      broker,
		PollInterval:   cfg.Orchestrator.PollInterval,
		StallWarnAfter: cfg.Orchestrator.StallWarnAfter,
		Logger:         logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Conn:        mqConn,
		Coordinator: coordinator,
		Watchdog:    watchdog,
		Prefetch:    cfg.Orchestrator.Prefetch,
		Logger:      logger,
	})

	// HTTP: /healthz + /metrics
	addr := config.Addr(cfg.Ports.Orchestrator)
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

	if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("orchestrator stopped with error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("zuriflow-orchestrator stopped")
}
