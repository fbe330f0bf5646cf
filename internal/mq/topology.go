package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeEvents Exchange = "agentfactory.events"
	ExchangeDLQ    Exchange = "agentfactory.dlq"
)

// Queues.
const (
	QueueRunEvents  Queue = "agentfactory.run_events"
	QueueStepEvents Queue = "agentfactory.step_events"
	QueueDLQEvents  Queue = "agentfactory.dlq.events"
)

// Routing keys совпадают с типами событий.
const (
	RoutingKeyRunStarted   RoutingKey = RoutingKey(EventRunStarted)
	RoutingKeyRunFinished  RoutingKey = RoutingKey(EventRunFinished)
	RoutingKeyStepFinished RoutingKey = RoutingKey(EventStepFinished)

	routingKeyRuns   RoutingKey = "run.*"
	routingKeySteps  RoutingKey = "step.*"
	routingKeyDLQAll RoutingKey = "#"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue    Queue
	key      RoutingKey
	exchange Exchange
}

func topology() ([]exchangeDecl, []queueDecl, []bindingDecl) {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange": string(ExchangeDLQ),
	}

	exchanges := []exchangeDecl{
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeTopic},
	}
	queues := []queueDecl{
		{QueueRunEvents, dlqArgs},
		{QueueStepEvents, dlqArgs},
		{QueueDLQEvents, nil},
	}
	bindings := []bindingDecl{
		{QueueRunEvents, routingKeyRuns, ExchangeEvents},
		{QueueStepEvents, routingKeySteps, ExchangeEvents},
		{QueueDLQEvents, routingKeyDLQAll, ExchangeDLQ},
	}
	return exchanges, queues, bindings
}

// SetupTopology объявляет exchanges, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	exchanges, queues, bindings := topology()

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings {
			if err := ch.QueueBind(string(b.queue), string(b.key), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  AgentFactory RabbitMQ Topology:

    agentfactory.events (topic)
    ├── agentfactory.run_events  [routing: run.*]
    └── agentfactory.step_events [routing: step.*]
            DLQ: agentfactory.dlq

    agentfactory.dlq (topic)
    └── agentfactory.dlq.events [routing: #]
  `
}
