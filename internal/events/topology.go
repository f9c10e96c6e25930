package events

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// ExchangeAudit — обменник audit-событий.
const ExchangeAudit Exchange = "forgeline.audit"

// Очереди audit sink.
const (
	QueueAuditRuns    Queue = "audit.runs"
	QueueAuditRepairs Queue = "audit.repairs"
	QueueAuditChaos   Queue = "audit.chaos"
	QueueAuditCanary  Queue = "audit.canary"
)

// Routing keys.
const (
	RoutingKeyRuns    RoutingKey = "runs"
	RoutingKeyRepairs RoutingKey = "repairs"
	RoutingKeyChaos   RoutingKey = "chaos"
	RoutingKeyCanary  RoutingKey = "canary"
)

// auditBindings — соответствие очередей audit sink и routing keys.
var auditBindings = []struct {
	queue Queue
	key   RoutingKey
}{
	{QueueAuditRuns, RoutingKeyRuns},
	{QueueAuditRepairs, RoutingKeyRepairs},
	{QueueAuditChaos, RoutingKeyChaos},
	{QueueAuditCanary, RoutingKeyCanary},
}

// SetupTopology объявляет обменник и очереди audit sink.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangeAudit), // name
			"direct",              // type
			true,                  // durable
			false,                 // auto-deleted
			false,                 // internal
			false,                 // no-wait
			nil,                   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeAudit, err)
		}

		for _, b := range auditBindings {
			if _, err := ch.QueueDeclare(
				string(b.queue), // name
				true,            // durable
				false,           // delete when unused
				false,           // exclusive
				false,           // no-wait
				nil,             // arguments
			); err != nil {
				return fmt.Errorf("declare queue %s: %w", b.queue, err)
			}

			if err := ch.QueueBind(
				string(b.queue),       // queue name
				string(b.key),         // routing key
				string(ExchangeAudit), // exchange
				false,                 // no-wait
				nil,                   // arguments
			); err != nil {
				return fmt.Errorf("bind queue %s: %w", b.queue, err)
			}
		}

		return nil
	})
}
