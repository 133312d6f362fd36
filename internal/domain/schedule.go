package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание автоматического запуска.
//
// Цель расписания — ровно одно из двух:
// - DefinitionID: создаётся новый run definition
// - TaskID: запускается standalone задача
//
// Правило — cron-выражение или интервал в секундах.
// Scheduler проверяет next_due_at и запускает цель, когда время подошло.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// Name — имя расписания для удобства.
	Name string `json:"name,omitempty"`

	// DefinitionID — definition, для которого создаются runs.
	DefinitionID *uuid.UUID `json:"definition_id,omitempty"`

	// TaskID — standalone задача, которая запускается.
	TaskID *uuid.UUID `json:"task_id,omitempty"`

	// CronExpr — cron-выражение.
	// Формат: "минуты часы дни месяцы дни_недели"
	// Примеры:
	//   "0 9 * * *"     — каждый день в 9:00
	//   "*/5 * * * *"   — каждые 5 минут
	// Если задан CronExpr, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах между запусками.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для cron. По умолчанию "UTC".
	Timezone string `json:"timezone"`

	// Enabled — если false, scheduler игнорирует расписание.
	Enabled bool `json:"enabled"`

	// NextDueAt — время следующего запуска.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего запуска.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastRunID — run (или синтетический run id standalone задачи) последнего запуска.
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ошибки валидации расписания.
var (
	ErrScheduleTarget = errors.New("schedule must target exactly one of definition or task")
	ErrScheduleRule   = errors.New("schedule requires cron_expr or positive interval_sec")
)

// Validate проверяет цель и правило расписания.
// Корректность cron-выражения проверяет scheduler.
func (s *Schedule) Validate() error {
	if (s.DefinitionID == nil) == (s.TaskID == nil) {
		return ErrScheduleTarget
	}
	if !s.IsCron() && !s.IsInterval() {
		return ErrScheduleRule
	}
	return nil
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun записывает информацию о запуске.
func (s *Schedule) RecordRun(runID uuid.UUID, nextDue time.Time) {
	now := time.Now().UTC()
	s.LastRunAt = &now
	s.LastRunID = &runID
	s.NextDueAt = &nextDue
	s.UpdatedAt = now
}

// Postpone сдвигает next_due_at без записи запуска.
func (s *Schedule) Postpone(nextDue time.Time) {
	s.NextDueAt = &nextDue
	s.UpdatedAt = time.Now().UTC()
}
