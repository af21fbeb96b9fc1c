package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrUnprocessable marks a message that can never succeed (undecodable, invalid).
// The consumer acks it and copies it to the dead-letter exchange instead of requeueing.
var ErrUnprocessable = errors.New("unprocessable message")

type MessageHandler func(ctx context.Context, data json.RawMessage) error

// QueueOptions 描述消费者队列
// Name 为空时由 broker 生成队列名（配合 Exclusive 用于每实例一个队列）
type QueueOptions struct {
	Name       string
	Exclusive  bool
	AutoDelete bool
}

type Consumer struct {
	channel     *amqp091.Channel
	queue       amqp091.Queue
	exchange    string
	routingKeys []string
	handler     MessageHandler
	conn        *amqp091.Connection
	connClosed  chan *amqp091.Error
	logger      *zap.Logger

	closeOnce sync.Once
	closing   chan struct{}
}

// NewConsumer creates a consumer bound to exchange with one or more routing keys.
func NewConsumer(url, exchange string, opts QueueOptions, routingKeys []string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	fail := func(format string, err error) (*Consumer, error) {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf(format, err)
	}

	if err := DeclareExchange(ch, exchange); err != nil {
		return fail("failed to declare exchange: %w", err)
	}
	if err := DeclareDLQExchange(ch); err != nil {
		return fail("failed to declare dead-letter exchange: %w", err)
	}
	if _, err := DeclareDLQQueue(ch); err != nil {
		return fail("%w", err)
	}

	q, err := ch.QueueDeclare(
		opts.Name,
		!opts.Exclusive, // 独占队列无需持久化
		opts.AutoDelete,
		opts.Exclusive,
		false,
		nil,
	)
	if err != nil {
		return fail("failed to declare queue: %w", err)
	}

	for _, key := range routingKeys {
		if err := ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
			return fail("failed to bind queue: %w", err)
		}
	}

	logger.Info("Consumer initialized",
		zap.Strings("routing_keys", routingKeys),
		zap.String("queue", q.Name),
		zap.String("exchange", exchange),
	)

	return &Consumer{
		conn:        conn,
		connClosed:  conn.NotifyClose(make(chan *amqp091.Error, 1)),
		channel:     ch,
		queue:       q,
		exchange:    exchange,
		routingKeys: routingKeys,
		logger:      logger,
		closing:     make(chan struct{}),
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// QueueName returns the (possibly broker-generated) queue name.
func (c *Consumer) QueueName() string {
	return c.queue.Name
}

// IsConnected reports whether the underlying connection is still open.
func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Close is idempotent. A consumer closed this way makes StartConsuming return nil.
func (c *Consumer) Close() {
	c.closeOnce.Do(func() {
		close(c.closing)
		if c.channel != nil {
			_ = c.channel.Close()
		}
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// StartConsuming starts consuming messages. This method blocks and should be called in a goroutine.
// It returns nil after Close or ctx cancellation, and the broker error when the connection drops.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"",
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("exchange", c.exchange),
		zap.String("queue", c.queue.Name),
	)

	// 顺序消费：一条消息处理完毕（ack 或 dead-letter）后才处理下一条
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return c.closeReason()
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) closeReason() error {
	select {
	case <-c.closing:
		return nil
	default:
	}
	select {
	case amqpErr, ok := <-c.connClosed:
		if ok && amqpErr != nil {
			return fmt.Errorf("connection closed: %w", amqpErr)
		}
	default:
	}
	return errors.New("delivery channel closed by broker")
}

func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery) {
	c.logger.Debug("Received message",
		zap.String("routing_key", msg.RoutingKey),
		zap.String("queue", c.queue.Name),
		zap.Int("message_size", len(msg.Body)),
	)

	// Panic 恢复：确保即使 handler panic 也能正确处理消息
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered",
				zap.String("routing_key", msg.RoutingKey),
				zap.String("queue", c.queue.Name),
				zap.Any("panic", r),
			)
			c.deadLetter(msg, fmt.Sprintf("panic: %v", r))
		}
	}()

	err := c.handler(ctx, msg.Body)
	switch {
	case err == nil:
		if ackErr := msg.Ack(false); ackErr != nil {
			c.logger.Error("Failed to ack message",
				zap.String("routing_key", msg.RoutingKey),
				zap.Error(ackErr),
			)
		}
	case errors.Is(err, ErrUnprocessable):
		c.logger.Warn("Dropping unprocessable message",
			zap.String("routing_key", msg.RoutingKey),
			zap.Error(err),
		)
		c.deadLetter(msg, err.Error())
	default:
		c.logger.Error("Handler error",
			zap.String("routing_key", msg.RoutingKey),
			zap.String("queue", c.queue.Name),
			zap.Error(err),
		)
		// 业务失败 → 拒绝消息并重新入队，让 MQ 重试
		if nackErr := msg.Nack(false, true); nackErr != nil {
			c.logger.Error("Failed to nack message",
				zap.String("routing_key", msg.RoutingKey),
				zap.Error(nackErr),
			)
		}
	}
}

// deadLetter 复制消息到 DLQ 后 ack 原消息
func (c *Consumer) deadLetter(msg amqp091.Delivery, reason string) {
	if err := publishToDLQ(c.channel, msg.RoutingKey, msg.Body, reason); err != nil {
		c.logger.Error("Failed to publish to DLQ",
			zap.String("routing_key", msg.RoutingKey),
			zap.Error(err),
		)
	}
	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack dead-lettered message",
			zap.String("routing_key", msg.RoutingKey),
			zap.Error(err),
		)
	}
}
