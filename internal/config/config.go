// Package config загружает конфигурацию сервисов ZuriFlow.
//
// Порядок: значения по умолчанию → YAML файл из ZURIFLOW_CONFIG → переменные окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/mq"
	"github.com/shaiso/zuriflow/internal/repo"
)

// Config — конфигурация всех сервисов.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Ports    PortsConfig    `yaml:"ports"`
	Worker   WorkerConfig   `yaml:"worker"`

	// Orchestrator — sweep и watchdog.
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// SchedulerTick — период проверки расписаний.
	SchedulerTick time.Duration `yaml:"scheduler_tick"`
}

// DatabaseConfig — подключение к Postgres.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RabbitMQConfig — подключение к RabbitMQ.
type RabbitMQConfig struct {
	URL string `yaml:"url"`
}

// PortsConfig — HTTP порты сервисов.
type PortsConfig struct {
	API          string `yaml:"api"`
	Orchestrator string `yaml:"orchestrator"`
	Worker       string `yaml:"worker"`
	Scheduler    string `yaml:"scheduler"`
}

// WorkerConfig — настройки worker'а.
type WorkerConfig struct {
	// Executors — разрешённые executor'ы. Пустой список — все.
	Executors []domain.ExecutorKind `yaml:"executors"`

	// TaskTimeout — таймаут задачи, если params.timeout_sec не задан.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// Prefetch — сообщений на consumer.
	Prefetch int `yaml:"prefetch"`
}

// OrchestratorConfig — настройки оркестратора.
type OrchestratorConfig struct {
	// PollInterval — период sweep'а зависших runs.
	PollInterval time.Duration `yaml:"poll_interval"`

	// StallWarnAfter — возраст открытого barrier'а, после которого пишется предупреждение.
	StallWarnAfter time.Duration `yaml:"stall_warn_after"`

	// Prefetch — шагов на consumer.
	Prefetch int `yaml:"prefetch"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{URL: repo.DefaultDSN},
		RabbitMQ: RabbitMQConfig{URL: mq.DefaultURL},
		Ports: PortsConfig{
			API:          "8080",
			Scheduler:    "8081",
			Worker:       "8082",
			Orchestrator: "8083",
		},
		Worker: WorkerConfig{
			Executors:   domain.ExecutorKinds(),
			TaskTimeout: 5 * time.Minute,
			Prefetch:    4,
		},
		Orchestrator: OrchestratorConfig{
			PollInterval:   30 * time.Second,
			StallWarnAfter: 15 * time.Minute,
			Prefetch:       10,
		},
		SchedulerTick: 10 * time.Second,
	}
}

// Load собирает конфигурацию и проверяет её.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("ZURIFLOW_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile накладывает YAML файл поверх текущих значений.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv накладывает переменные окружения.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("DB_URL", &c.Database.URL)
	str("RABBITMQ_URL", &c.RabbitMQ.URL)
	str("API_PORT", &c.Ports.API)
	str("ORCH_PORT", &c.Ports.Orchestrator)
	str("WORKER_PORT", &c.Ports.Worker)
	str("SCHED_PORT", &c.Ports.Scheduler)

	var errs []error

	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	dur("POLL_INTERVAL", &c.Orchestrator.PollInterval)
	dur("STALL_WARN_AFTER", &c.Orchestrator.StallWarnAfter)
	dur("TASK_TIMEOUT", &c.Worker.TaskTimeout)
	dur("SCHED_TICK", &c.SchedulerTick)

	if v, ok := lookup("WORKER_PREFETCH"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WORKER_PREFETCH: %w", err))
		} else {
			c.Worker.Prefetch = n
		}
	}

	if v, ok := lookup("ZURIFLOW_EXECUTORS"); ok && strings.TrimSpace(v) != "" {
		kinds, err := ParseExecutors(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ZURIFLOW_EXECUTORS: %w", err))
		} else {
			c.Worker.Executors = kinds
		}
	}

	return errors.Join(errs...)
}

// ParseExecutors разбирает список executor'ов через запятую ("script,bash").
func ParseExecutors(s string) ([]domain.ExecutorKind, error) {
	var kinds []domain.ExecutorKind
	seen := make(map[domain.ExecutorKind]bool)

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, err := domain.ParseExecutorKind(part)
		if err != nil {
			return nil, err
		}
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	return kinds, nil
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.RabbitMQ.URL == "" {
		errs = append(errs, errors.New("rabbitmq.url is required"))
	}
	for _, kind := range c.Worker.Executors {
		if !kind.IsValid() {
			errs = append(errs, fmt.Errorf("unknown executor %q", kind))
		}
	}
	if c.Worker.TaskTimeout <= 0 {
		errs = append(errs, errors.New("worker.task_timeout must be positive"))
	}
	if c.Worker.Prefetch <= 0 {
		errs = append(errs, errors.New("worker.prefetch must be positive"))
	}
	if c.Orchestrator.PollInterval <= 0 {
		errs = append(errs, errors.New("orchestrator.poll_interval must be positive"))
	}
	if c.Orchestrator.StallWarnAfter <= 0 {
		errs = append(errs, errors.New("orchestrator.stall_warn_after must be positive"))
	}
	if c.SchedulerTick <= 0 {
		errs = append(errs, errors.New("scheduler_tick must be positive"))
	}

	return errors.Join(errs...)
}

// Addr возвращает адрес для http.ListenAndServe.
func Addr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
