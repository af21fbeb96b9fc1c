package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// FeedExchange carries row-level change events, routing key feed.<table>.<event_type>.
	FeedExchange = "feed"
	// PushExchange carries notification push requests for the mobile/desktop push worker.
	PushExchange = "notifications"
)

// NewConnection creates a new RabbitMQ connection.
func NewConnection(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares a durable topic exchange.
func DeclareExchange(ch *amqp091.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}
