// ZuriFlow API — HTTP API для definitions, runs, standalone задач и schedules.
//
// API:
//   - Применяет схему БД при старте
//   - Валидирует и сохраняет definitions
//   - Запускает runs и standalone задачи через RabbitMQ
//   - Отдаёт /metrics и /healthz на том же порту
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/zuriflow/internal/api"
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
	logger.Info("starting zuriflow-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready")

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

	definitions := repo.NewDefinitionRepo(pool)
	runs := repo.NewRunRepo(pool)
	standalone := repo.NewStandaloneRepo(pool)
	broker := dispatch.NewBroker(mq.NewPublisher(mqConn, logger), repo.NewBarrierRepo(pool), logger)

	trigger := orchestrator.NewTrigger(orchestrator.TriggerConfig{
		Definitions: definitions,
		Runs:        runs,
		Standalone:  standalone,
		Substrate:   broker,
		Logger:      logger,
	})

	handler := api.NewHandler(api.Config{
		Definitions:      definitions,
		Runs:             runs,
		Tasks:            repo.NewTaskRepo(pool),
		Standalone:       standalone,
		Schedules:        repo.NewScheduleRepo(pool),
		Launcher:         trigger,
		AllowedExecutors: cfg.Worker.Executors,
		Logger:           logger,
	})

	// /metrics и /healthz
	mux := telemetry.OpsHandler()
	handler.RegisterRoutes(mux)

	addr := config.Addr(cfg.Ports.API)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
