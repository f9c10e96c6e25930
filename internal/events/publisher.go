package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mkoresh/forgeline/internal/domain"
)

// EventType — тип audit-события.
type EventType string

// Типы событий.
const (
	EventRunStatusChanged EventType = "run.status_changed"
	EventRepairAttempted  EventType = "repair.attempted"
	EventBreakerChanged   EventType = "breaker.state_changed"
	EventChaosInjected    EventType = "chaos.injected"
	EventCanaryEvaluated  EventType = "canary.evaluated"
)

// Event — событие для публикации.
type Event struct {
	// ID — уникальный идентификатор события.
	ID string `json:"id"`

	// Type — тип события.
	Type EventType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunStatusPayload — payload смены статуса run.
type RunStatusPayload struct {
	RunID  uuid.UUID        `json:"run_id"`
	Status domain.RunStatus `json:"status"`
	Error  string           `json:"error,omitempty"`
}

// BreakerPayload — payload перехода breaker'а.
type BreakerPayload struct {
	FailureClass domain.FailureClass `json:"failure_class"`
	State        domain.BreakerState `json:"state"`
}

// Publisher публикует audit-события в RabbitMQ.
//
// Publisher nil-safe: методы на nil-публишере — no-op, система
// работает в log-only режиме без RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует событие с указанным routing key.
func (p *Publisher) Publish(ctx context.Context, routingKey RoutingKey, eventType EventType, payload any) error {
	if p == nil || p.conn == nil {
		return nil
	}

	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangeAudit),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    event.ID,
				Timestamp:    event.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish %s: %w", eventType, err)
		}

		p.logger.Debug("published audit event",
			"type", eventType,
			"routing_key", routingKey,
			"event_id", event.ID,
		)
		return nil
	})
}

// PublishRunStatus публикует смену статуса run.
func (p *Publisher) PublishRunStatus(ctx context.Context, run *domain.Run) error {
	return p.Publish(ctx, RoutingKeyRuns, EventRunStatusChanged, RunStatusPayload{
		RunID:  run.ID,
		Status: run.Status,
		Error:  run.Error,
	})
}

// PublishRepairAttempt публикует запись repair trail.
func (p *Publisher) PublishRepairAttempt(ctx context.Context, attempt domain.RepairAttempt) error {
	return p.Publish(ctx, RoutingKeyRepairs, EventRepairAttempted, attempt)
}

// PublishBreakerChange публикует переход breaker'а.
func (p *Publisher) PublishBreakerChange(ctx context.Context, class domain.FailureClass, state domain.BreakerState) error {
	return p.Publish(ctx, RoutingKeyChaos, EventBreakerChanged, BreakerPayload{
		FailureClass: class,
		State:        state,
	})
}

// PublishChaosEvent публикует инъекцию синтетического отказа.
func (p *Publisher) PublishChaosEvent(ctx context.Context, event domain.ChaosEvent) error {
	return p.Publish(ctx, RoutingKeyChaos, EventChaosInjected, event)
}

// PublishCanaryComparison публикует итог canary-сравнения.
func (p *Publisher) PublishCanaryComparison(ctx context.Context, cmp domain.CanaryComparison) error {
	return p.Publish(ctx, RoutingKeyCanary, EventCanaryEvaluated, cmp)
}
