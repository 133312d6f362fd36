package dispatch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/mq"
)

// Job — единица работы в очереди.
type Job struct {
	// ID — идентификатор job в substrate (dispatch id).
	ID uuid.UUID `json:"id"`

	// Type — task.dispatch или run.step.
	Type mq.MessageType `json:"type"`

	// Name — имя задачи (для логов и barrier members).
	Name string `json:"name,omitempty"`

	// Payload — TaskJob или StepJob в JSON.
	Payload json.RawMessage `json:"payload"`
}

// Message — job с адресом очереди.
type Message struct {
	Queue string `json:"queue"`
	Job   Job    `json:"job"`
}

// TaskJob — задача для executor'а.
type TaskJob struct {
	RunID     uuid.UUID           `json:"run_id"`
	TaskName  string              `json:"task_name"`
	Executor  domain.ExecutorKind `json:"executor"`
	Params    map[string]any      `json:"params,omitempty"`
	BarrierID *uuid.UUID          `json:"barrier_id,omitempty"`
}

// StepJob — запрос на следующий шаг координатора.
type StepJob struct {
	RunID        uuid.UUID `json:"run_id"`
	DefinitionID uuid.UUID `json:"definition_id"`

	// Completed — задачи, завершённые к моменту отправки (отсортированы).
	Completed []string `json:"completed"`
}

// NewTaskJob упаковывает задачу в Job.
func NewTaskJob(id uuid.UUID, task TaskJob) (Job, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return Job{}, fmt.Errorf("marshal task job: %w", err)
	}
	return Job{ID: id, Type: mq.MessageTypeTaskDispatch, Name: task.TaskName, Payload: payload}, nil
}

// NewStepJob упаковывает запрос шага в Job.
func NewStepJob(id uuid.UUID, step StepJob) (Job, error) {
	step.Completed = sortedCopy(step.Completed)
	payload, err := json.Marshal(step)
	if err != nil {
		return Job{}, fmt.Errorf("marshal step job: %w", err)
	}
	return Job{ID: id, Type: mq.MessageTypeRunStep, Payload: payload}, nil
}

// Task распаковывает TaskJob.
func (j Job) Task() (TaskJob, error) {
	var task TaskJob
	if j.Type != mq.MessageTypeTaskDispatch {
		return task, fmt.Errorf("job %s is %s, not %s", j.ID, j.Type, mq.MessageTypeTaskDispatch)
	}
	if err := json.Unmarshal(j.Payload, &task); err != nil {
		return task, fmt.Errorf("unmarshal task job: %w", err)
	}
	return task, nil
}

// Step распаковывает StepJob.
func (j Job) Step() (StepJob, error) {
	var step StepJob
	if j.Type != mq.MessageTypeRunStep {
		return step, fmt.Errorf("job %s is %s, not %s", j.ID, j.Type, mq.MessageTypeRunStep)
	}
	if err := json.Unmarshal(j.Payload, &step); err != nil {
		return step, fmt.Errorf("unmarshal step job: %w", err)
	}
	return step, nil
}

// BarrierID вычисляет детерминированный id barrier'а для шага run'а.
// Один и тот же run с теми же completed/failed множествами даёт тот же id.
func BarrierID(runID uuid.UUID, completed, failed []string) uuid.UUID {
	key := "completed:" + strings.Join(sortedCopy(completed), ",") +
		"|failed:" + strings.Join(sortedCopy(failed), ",")
	return uuid.NewSHA1(runID, []byte(key))
}

// MemberJobID вычисляет id job участника batch'а.
func MemberJobID(barrierID uuid.UUID, taskName string) uuid.UUID {
	return uuid.NewSHA1(barrierID, []byte("task:"+taskName))
}

// ContinuationID вычисляет id continuation batch'а.
func ContinuationID(barrierID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(barrierID, []byte("continuation"))
}

func sortedCopy(names []string) []string {
	out := append([]string{}, names...)
	sort.Strings(out)
	return out
}
