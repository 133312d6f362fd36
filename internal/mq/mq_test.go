package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/zuriflow/internal/domain"
)

func TestTaskQueue(t *testing.T) {
	for _, kind := range domain.ExecutorKinds() {
		q := TaskQueue(kind)
		r, ok := routes[q]
		if !ok {
			t.Errorf("queue %s for %s is not declared", q, kind)
			continue
		}
		if r.exchange != ExchangeTasks || r.routingKey != RoutingKey(kind) {
			t.Errorf("queue %s routed via %s/%s", q, r.exchange, r.routingKey)
		}
	}
}

func TestShouldRequeue(t *testing.T) {
	transient := errors.New("db unavailable")
	permanent := fmt.Errorf("bad payload: %w", ErrPermanent)

	tests := []struct {
		name        string
		err         error
		redelivered bool
		want        bool
	}{
		{"first failure", transient, false, true},
		{"second failure", transient, true, false},
		{"permanent", permanent, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRequeue(tt.err, tt.redelivered); got != tt.want {
				t.Errorf("ShouldRequeue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePayload(t *testing.T) {
	type payload struct {
		RunID string `json:"run_id"`
		Count int    `json:"count"`
	}

	msg := &Message{Payload: map[string]any{"run_id": "abc", "count": 3.0}}
	got, err := ParsePayload[payload](msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RunID != "abc" || got.Count != 3 {
		t.Errorf("ParsePayload() = %+v", got)
	}

	_, err = ParsePayload[payload](&Message{Payload: "not an object"})
	if !errors.Is(err, ErrPermanent) {
		t.Errorf("expected ErrPermanent, got %v", err)
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("", MessageTypeRunStep, nil)
	if msg.ID == "" {
		t.Error("empty id should be generated")
	}
	if NewMessage("job-1", MessageTypeTaskDispatch, nil).ID != "job-1" {
		t.Error("explicit id should be kept")
	}
}

// ackRecorder запоминает ack/nack по delivery tag.
type ackRecorder struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
}

func (a *ackRecorder) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *ackRecorder) Nack(tag uint64, _, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestConsumer_HandlesUpToPrefetchConcurrently(t *testing.T) {
	const prefetch = 3

	var inFlight, peak atomic.Int32
	all := make(chan struct{})
	var arrived sync.Once
	var count atomic.Int32

	handler := func(ctx context.Context, _ *Delivery) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if count.Add(1) == prefetch {
			arrived.Do(func() { close(all) })
		}
		// Все обработчики ждут друг друга: при последовательной обработке тест упадёт по таймауту.
		select {
		case <-all:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("deliveries were not handled concurrently")
		}
	}

	c := &Consumer{
		logger:   slog.New(slog.DiscardHandler),
		handler:  handler,
		prefetch: prefetch,
	}

	acks := &ackRecorder{}
	deliveries := make(chan amqp.Delivery, prefetch)
	for i := 1; i <= prefetch; i++ {
		body, err := json.Marshal(NewMessage(fmt.Sprintf("job-%d", i), MessageTypeTaskDispatch, nil))
		require.NoError(t, err)
		deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: uint64(i), Body: body}
	}
	close(deliveries)

	err := c.processDeliveries(context.Background(), deliveries)
	require.Error(t, err, "closed channel ends processing")

	assert.Equal(t, int32(prefetch), peak.Load())
	assert.ElementsMatch(t, []uint64{1, 2, 3}, acks.acked)
	assert.Empty(t, acks.nacked)
}

func TestConsumer_RespectsPrefetchLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	handler := func(context.Context, *Delivery) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	}

	c := &Consumer{logger: slog.New(slog.DiscardHandler), handler: handler, prefetch: 2}

	acks := &ackRecorder{}
	deliveries := make(chan amqp.Delivery, 8)
	for i := 1; i <= 8; i++ {
		body, err := json.Marshal(NewMessage("", MessageTypeRunStep, nil))
		require.NoError(t, err)
		deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: uint64(i), Body: body}
	}
	close(deliveries)

	require.Error(t, c.processDeliveries(context.Background(), deliveries))
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Len(t, acks.acked, 8)
}
