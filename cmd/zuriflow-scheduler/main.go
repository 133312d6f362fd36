// ZuriFlow Scheduler — запускает definitions и standalone задачи по расписанию.
//
// Scheduler:
//   - Раз в tick выбирает due schedules
//   - Запускает run definition или standalone задачу
//   - Вычисляет next_due_at (cron в таймзоне schedule или интервал)
//
// Тикает только лидер: pg_try_advisory_lock не даёт двум экземплярам
// запустить одно расписание дважды.
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
	"github.com/shaiso/zuriflow/internal/scheduler"
	"github.com/shaiso/zuriflow/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting zuriflow-scheduler")

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
	trigger := orchestrator.NewTrigger(orchestrator.TriggerConfig{
		Definitions: repo.NewDefinitionRepo(pool),
		Runs:        repo.NewRunRepo(pool),
		Standalone:  repo.NewStandaloneRepo(pool),
		Substrate:   broker,
		Logger:      logger,
	})

	lock := repo.NewAdvisoryLock(pool, repo.SchedulerLockKey)
	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()
		if err := lock.Release(releaseCtx); err != nil {
			logger.Warn("failed to release scheduler lock", "error", err)
		}
	}()

	sched := scheduler.New(scheduler.Config{
		Schedules: repo.NewScheduleRepo(pool),
		Launcher:  trigger,
		Leader:    lock,
		Tick:      cfg.SchedulerTick,
		Logger:    logger,
	})

	// HTTP: /healthz + /metrics
	addr := config.Addr(cfg.Ports.Scheduler)
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

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped with error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("zuriflow-scheduler stopped")
}
