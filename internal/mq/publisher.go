package mq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// TopologyEvent is published after a topology snapshot was stored
type TopologyEvent struct {
	RunID       string `json:"run_id"`
	Trigger     string `json:"trigger"`
	Clients     int    `json:"clients"`
	Devices     int    `json:"devices"`
	Warnings    int    `json:"warnings"`
	PublishedAt string `json:"published_at"`
}

// Publisher publishes topology events to RabbitMQ
type Publisher struct {
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a publisher on its own channel and declares the events exchange
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := declareTopicExchange(ch, exchange); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// PublishTopologyEvent publishes a topology.published event
func (p *Publisher) PublishTopologyEvent(ctx context.Context, event TopologyEvent, routingKey string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.RunID,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published topology event",
		zap.String("routing_key", routingKey),
		zap.String("run_id", event.RunID),
		zap.Int("clients", event.Clients),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
