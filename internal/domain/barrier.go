package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Barrier — точка соединения batch'а: continuation отправляется один раз,
// когда все участники достигли финального статуса.
type Barrier struct {
	// ID — детерминированный идентификатор: зависит от run и completed-set шага.
	ID uuid.UUID `json:"id"`

	// RunID — run, которому принадлежит batch.
	RunID uuid.UUID `json:"run_id"`

	// Continuation — сообщение, отправляемое после закрытия barrier (JSON).
	Continuation json.RawMessage `json:"continuation"`

	// Members — участники batch'а.
	Members []BarrierMember `json:"members"`

	// CreatedAt — время регистрации batch'а.
	CreatedAt time.Time `json:"created_at"`

	// DispatchedAt — время, когда разосланы все участники. Nil после сбоя
	// между регистрацией и рассылкой.
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`

	// FiredAt — время отправки continuation. Nil, пока barrier открыт.
	FiredAt *time.Time `json:"fired_at,omitempty"`
}

// BarrierMember — один job batch'а.
type BarrierMember struct {
	JobID    uuid.UUID   `json:"job_id"`
	TaskName string      `json:"task_name"`
	Status   *TaskStatus `json:"status,omitempty"`
	DoneAt   *time.Time  `json:"done_at,omitempty"`
}

// Open возвращает количество участников без финального статуса.
func (b *Barrier) Open() int {
	n := 0
	for _, m := range b.Members {
		if m.DoneAt == nil {
			n++
		}
	}
	return n
}

// IsDispatched возвращает true, если все участники разосланы.
func (b *Barrier) IsDispatched() bool {
	return b.DispatchedAt != nil
}

// IsFired возвращает true, если continuation уже отправлен.
func (b *Barrier) IsFired() bool {
	return b.FiredAt != nil
}
