package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Метрики оркестратора.
var (
	// StepsTotal — шаги координатора по вердикту (ready/done/stuck/noop/error).
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zuriflow_orchestrator_steps_total",
		Help: "Coordinator steps by verdict",
	}, []string{"verdict"})

	// RunsFinishedTotal — завершённые runs по статусу.
	RunsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zuriflow_runs_finished_total",
		Help: "Runs that reached a terminal status",
	}, []string{"status"})

	// TasksDispatchedTotal — отправленные jobs по executor'у.
	TasksDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zuriflow_tasks_dispatched_total",
		Help: "Task jobs sent to executor queues",
	}, []string{"executor"})

	// BarriersStalled — barriers, открытые дольше порога предупреждения.
	BarriersStalled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zuriflow_barriers_stalled",
		Help: "Barriers open longer than the stall warning threshold",
	})
)

// Метрики worker'а.
var (
	// TasksExecutedTotal — выполненные задачи по executor'у и статусу.
	TasksExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zuriflow_tasks_executed_total",
		Help: "Tasks executed by workers",
	}, []string{"executor", "status"})

	// TaskDuration — длительность выполнения задач.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zuriflow_task_duration_seconds",
		Help:    "Task execution duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"executor"})
)

// Метрики API и scheduler'а.
var (
	// HTTPRequestsTotal — HTTP запросы к API.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zuriflow_api_requests_total",
		Help: "API requests by method and status code",
	}, []string{"method", "code"})

	// SchedulesFiredTotal — срабатывания расписаний по типу цели.
	SchedulesFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zuriflow_schedules_fired_total",
		Help: "Schedule firings by target kind",
	}, []string{"target"})
)

// OpsHandler возвращает mux с /metrics и /healthz.
func OpsHandler() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})
	return mux
}
