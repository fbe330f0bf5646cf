package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает событие. Ошибка — nack с возвратом в очередь.
type Handler func(ctx context.Context, ev *Delivery) error

// Delivery — полученное событие. Payload остаётся сырым JSON до ParsePayload.
type Delivery struct {
	ID        string
	Type      EventType
	RunID     uuid.UUID
	Payload   []byte
	Timestamp time.Time
}

type wireEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	RunID     uuid.UUID       `json:"run_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Consumer читает события из очереди.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  Handler
	prefetch int
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	// Queue — очередь событий.
	Queue Queue

	// Handler — обработчик событий.
	Handler Handler

	// Prefetch — сколько сообщений брать вперёд. По умолчанию 1.
	Prefetch int
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("component", "mq", "queue", cfg.Queue),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: cfg.Prefetch,
	}
}

// Start читает события до отмены ctx, переживая reconnect.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "error", err)
		} else {
			c.logger.Info("consumer started")
			if err := c.processDeliveries(ctx, deliveries); ctx.Err() != nil {
				return ctx.Err()
			} else if err != nil {
				c.logger.Warn("deliveries channel closed, waiting for reconnect", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(string(c.queue), "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	d, err := DecodeEvent(raw.Body)
	if err != nil {
		c.logger.Error("failed to decode event", "error", err, "body", string(raw.Body))
		// битое сообщение уходит в DLQ
		_ = raw.Nack(false, false)
		return
	}

	if err := c.handler(ctx, d); err != nil {
		c.logger.Error("handler failed", "message_id", d.ID, "type", d.Type, "error", err)
		_ = raw.Nack(false, true)
		return
	}

	_ = raw.Ack(false)
}

// DecodeEvent разбирает тело сообщения.
func DecodeEvent(body []byte) (*Delivery, error) {
	var w wireEvent
	if err := sonic.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if w.Type == "" {
		return nil, fmt.Errorf("unmarshal event: missing type")
	}
	return &Delivery{
		ID:        w.ID,
		Type:      w.Type,
		RunID:     w.RunID,
		Payload:   []byte(w.Payload),
		Timestamp: w.Timestamp,
	}, nil
}

// ParsePayload разбирает payload события в T.
func ParsePayload[T any](d *Delivery) (T, error) {
	var result T
	if err := sonic.Unmarshal(d.Payload, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
