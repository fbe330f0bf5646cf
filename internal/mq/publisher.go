package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/SIslamMun/AgentFactory/internal/domain"
)

// EventType — тип события.
type EventType string

// Типы событий.
const (
	EventRunStarted   EventType = "run.started"
	EventStepFinished EventType = "step.finished"
	EventRunFinished  EventType = "run.finished"
)

// Event — конверт события.
type Event struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип события.
	Type EventType `json:"type"`

	// RunID — run, к которому относится событие.
	RunID uuid.UUID `json:"run_id"`

	// Payload — domain.Run для run.*, domain.StepRecord для step.*.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// Sender отправляет сообщение в exchange. Реализуется *Connection.
type Sender interface {
	Send(ctx context.Context, exchange Exchange, key RoutingKey, pub amqp.Publishing) error
}

// Publisher публикует события выполнения pipeline.
type Publisher struct {
	sender Sender
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(sender Sender, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		sender: sender,
		logger: logger.With("component", "mq"),
	}
}

// Publish публикует событие с routing key, равным типу события.
func (p *Publisher) Publish(ctx context.Context, ev *Event) error {
	body, err := sonic.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.sender.Send(ctx, ExchangeEvents, RoutingKey(ev.Type), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.Timestamp,
		Type:         string(ev.Type),
		Body:         body,
	})
	if err != nil {
		return err
	}

	p.logger.Debug("published event",
		"message_id", ev.ID,
		"type", ev.Type,
		"run_id", ev.RunID,
	)
	return nil
}

// PublishRunStarted публикует run.started.
func (p *Publisher) PublishRunStarted(ctx context.Context, run *domain.Run) error {
	return p.Publish(ctx, newEvent(EventRunStarted, run.ID, run))
}

// PublishStepFinished публикует step.finished.
func (p *Publisher) PublishStepFinished(ctx context.Context, rec *domain.StepRecord) error {
	return p.Publish(ctx, newEvent(EventStepFinished, rec.RunID, rec))
}

// PublishRunFinished публикует run.finished.
func (p *Publisher) PublishRunFinished(ctx context.Context, run *domain.Run) error {
	return p.Publish(ctx, newEvent(EventRunFinished, run.ID, run))
}

func newEvent(t EventType, runID uuid.UUID, payload any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		RunID:     runID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
