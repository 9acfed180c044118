package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// MessageHandler processes one delivery body. A returned error dead-letters
// the message.
type MessageHandler func(ctx context.Context, body []byte) error

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Connection    *Connection
	Exchange      string
	Queue         string
	RoutingKey    string
	DLQQueue      string
	PrefetchCount int
	Logger        *zap.Logger
	Handler       MessageHandler
}

// Consumer receives on-demand sync requests
type Consumer struct {
	channel       *amqp.Channel
	queue         string
	prefetchCount int
	logger        *zap.Logger
	handler       MessageHandler
}

// NewConsumer opens a channel and declares the trigger exchange, queue and DLQ
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	ch, err := cfg.Connection.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := declareTriggerTopology(ch, cfg); err != nil {
		ch.Close()
		return nil, err
	}

	return &Consumer{
		channel:       ch,
		queue:         cfg.Queue,
		prefetchCount: cfg.PrefetchCount,
		logger:        cfg.Logger,
		handler:       cfg.Handler,
	}, nil
}

func declareTriggerTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	if err := declareTopicExchange(ch, cfg.Exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.DLQQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.DLQQueue,
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Start begins consuming until ctx is cancelled or the channel closes
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("trigger consumer started",
		zap.String("queue", c.queue),
		zap.Int("prefetch", c.prefetchCount),
	)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("trigger consumer context cancelled, stopping")
				return
			case d, ok := <-deliveries:
				if !ok {
					c.logger.Warn("trigger delivery channel closed")
					return
				}
				c.handle(ctx, d)
			}
		}
	}()

	return nil
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	if err := c.handler(ctx, d.Body); err != nil {
		c.logger.Error("sync request failed",
			zap.Error(err),
			zap.String("message_id", d.MessageId),
		)
		// requeue=false routes the request to the DLQ
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("failed to NACK sync request", zap.Error(nackErr))
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		c.logger.Error("failed to ACK sync request", zap.Error(ackErr))
	}
}

// Close closes the consumer channel
func (c *Consumer) Close() error {
	if c.channel != nil {
		return c.channel.Close()
	}
	return nil
}
