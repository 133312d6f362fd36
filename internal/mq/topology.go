package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/zuriflow/internal/domain"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeRuns  Exchange = "zuriflow.runs"
	ExchangeTasks Exchange = "zuriflow.tasks"
	ExchangeDLQ   Exchange = "zuriflow.dlq"
)

// Queues — имена очередей.
const (
	QueueTasksScript Queue = "tasks.script"
	QueueTasksShell  Queue = "tasks.shell"
	QueueTasksBinary Queue = "tasks.binary"
	QueueRunsSteps   Queue = "runs.steps"
	QueueDLQTasks    Queue = "dlq.tasks"
	QueueDLQRuns     Queue = "dlq.runs"
)

// Routing keys.
const (
	RoutingKeyStep     RoutingKey = "step"
	RoutingKeyDLQTasks RoutingKey = "tasks"
	RoutingKeyDLQRuns  RoutingKey = "runs"
)

// route — куда публиковать, чтобы сообщение попало в очередь.
type route struct {
	exchange   Exchange
	routingKey RoutingKey
	deadLetter RoutingKey
}

// routes — все рабочие очереди и их привязки.
var routes = map[Queue]route{
	QueueTasksScript: {ExchangeTasks, RoutingKey(domain.ExecutorScript), RoutingKeyDLQTasks},
	QueueTasksShell:  {ExchangeTasks, RoutingKey(domain.ExecutorShell), RoutingKeyDLQTasks},
	QueueTasksBinary: {ExchangeTasks, RoutingKey(domain.ExecutorBinary), RoutingKeyDLQTasks},
	QueueRunsSteps:   {ExchangeRuns, RoutingKeyStep, RoutingKeyDLQRuns},
}

// TaskQueue возвращает очередь executor'а данного kind.
func TaskQueue(kind domain.ExecutorKind) Queue {
	return Queue("tasks." + string(kind))
}

// SetupTopology объявляет exchanges, очереди и привязки. Идемпотентно.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeRuns, ExchangeTasks, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(name), // name
			"direct",     // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

// declareQueues создаёт рабочие очереди (с DLQ) и сами DLQ.
func declareQueues(ch *amqp.Channel) error {
	for name, r := range routes {
		args := amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(r.deadLetter),
		}
		if err := declareQueue(ch, name, args); err != nil {
			return err
		}
	}

	for _, name := range []Queue{QueueDLQTasks, QueueDLQRuns} {
		if err := declareQueue(ch, name, nil); err != nil {
			return err
		}
	}
	return nil
}

func declareQueue(ch *amqp.Channel, name Queue, args amqp.Table) error {
	_, err := ch.QueueDeclare(
		string(name), // name
		true,         // durable
		false,        // delete when unused
		false,        // exclusive
		false,        // no-wait
		args,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	type binding struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}

	bindings := []binding{
		{QueueDLQTasks, RoutingKeyDLQTasks, ExchangeDLQ},
		{QueueDLQRuns, RoutingKeyDLQRuns, ExchangeDLQ},
	}
	for name, r := range routes {
		bindings = append(bindings, binding{name, r.routingKey, r.exchange})
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  ZuriFlow RabbitMQ Topology:

    zuriflow.tasks (direct)
    ├── tasks.script [routing: script]   Consumer: Worker   DLQ: dlq.tasks
    ├── tasks.shell  [routing: shell]    Consumer: Worker   DLQ: dlq.tasks
    └── tasks.binary [routing: binary]   Consumer: Worker   DLQ: dlq.tasks

    zuriflow.runs (direct)
    └── runs.steps [routing: step]       Consumer: Orchestrator   DLQ: dlq.runs

    zuriflow.dlq (direct)
    ├── dlq.tasks [routing: tasks]       Manual processing
    └── dlq.runs  [routing: runs]        Manual processing
  `
}
