package mq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Connection wraps the RabbitMQ connection shared by the trigger consumer
// and the event publisher
type Connection struct {
	conn   *amqp.Connection
	logger *zap.Logger
}

// NewConnection dials RabbitMQ and closes the connection on shutdown
func NewConnection(lc fx.Lifecycle, logger *zap.Logger, url string) (*Connection, error) {
	logger.Info("attempting to connect to RabbitMQ...")

	conn, err := amqp.Dial(url)
	if err != nil {
		logger.Error("rabbitmq connection failed", zap.Error(err))
		return nil, fmt.Errorf("[RABBITMQ CONNECTION FAILED] cannot connect to RabbitMQ. Please check: 1) RabbitMQ is running, 2) RABBITMQ_URL is correct, 3) Credentials are valid. Error: %w", err)
	}

	c := &Connection{conn: conn, logger: logger}
	go c.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("rabbitmq connection established successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if conn.IsClosed() {
				return nil
			}
			if err := conn.Close(); err != nil {
				logger.Error("failed to close rabbitmq connection", zap.Error(err))
				return err
			}
			logger.Info("rabbitmq connection closed")
			return nil
		},
	})

	return c, nil
}

// watch logs an unexpected broker-side close
func (c *Connection) watch(closed <-chan *amqp.Error) {
	if err, ok := <-closed; ok && err != nil {
		c.logger.Error("rabbitmq connection lost", zap.String("reason", err.Reason), zap.Int("code", err.Code))
	}
}

// ErrConnectionClosed is reported by Ping once the broker connection is gone.
var ErrConnectionClosed = errors.New("rabbitmq connection closed")

// Ping reports whether the broker connection is still open
func (c *Connection) Ping(ctx context.Context) error {
	if c.conn.IsClosed() {
		return ErrConnectionClosed
	}
	return nil
}

// Channel opens a new RabbitMQ channel
func (c *Connection) Channel() (*amqp.Channel, error) {
	return c.conn.Channel()
}

// declareTopicExchange declares a durable topic exchange
func declareTopicExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
}
