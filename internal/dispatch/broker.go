package dispatch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/zuriflow/internal/domain"
	"github.com/shaiso/zuriflow/internal/mq"
)

// Broker — Substrate поверх RabbitMQ и Postgres barrier'ов.
type Broker struct {
	publisher *mq.Publisher
	joiner
}

// NewBroker создаёт Broker.
func NewBroker(publisher *mq.Publisher, barriers BarrierStore, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{publisher: publisher}
	b.joiner = joiner{
		store:  barriers,
		send:   b.publish,
		logger: logger.With("component", "dispatch"),
	}
	return b
}

func (b *Broker) publish(ctx context.Context, msg Message) error {
	return b.publisher.PublishToQueue(ctx, mq.Queue(msg.Queue),
		mq.NewMessage(msg.Job.ID.String(), msg.Job.Type, msg.Job))
}

// Send публикует job в очередь.
func (b *Broker) Send(ctx context.Context, queue string, job Job) error {
	return b.publish(ctx, Message{Queue: queue, Job: job})
}

// Chord регистрирует barrier в Postgres и публикует участников.
func (b *Broker) Chord(ctx context.Context, chord Chord) error {
	return b.chord(ctx, chord)
}

// Complete отмечает участника и, если он последний, публикует continuation.
func (b *Broker) Complete(ctx context.Context, barrierID, jobID uuid.UUID, status domain.TaskStatus) error {
	return b.complete(ctx, barrierID, jobID, status)
}

// Flush повторяет отправку continuation.
func (b *Broker) Flush(ctx context.Context, barrierID uuid.UUID) error {
	return b.flush(ctx, barrierID)
}

// DecodeDelivery достаёт Job из сообщения RabbitMQ.
func DecodeDelivery(d *mq.Delivery) (Job, error) {
	return mq.ParsePayload[Job](&d.Message)
}
