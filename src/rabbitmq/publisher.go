package rabbitmq

import (
	"encoding/json"
	"time"

	"github.com/streadway/amqp"
)

// SessionEvent is the lifecycle notification fanned out to downstream
// consumers (notifications, audit, billing).
type SessionEvent struct {
	Event     string    `json:"event"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits session lifecycle events.
type Publisher interface {
	PublishSessionEvent(event SessionEvent) error
}

// EventPublisher publishes session events to a fanout exchange.
type EventPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewEventPublisher connects to RabbitMQ and declares the durable fanout
// exchange the events go to.
func NewEventPublisher(amqpURL, exchange string) (*EventPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &EventPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// PublishSessionEvent marshals the event and publishes it. A zero timestamp
// is filled in with the publish time.
func (p *EventPublisher) PublishSessionEvent(event SessionEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.channel.Publish(
		p.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// Close closes the RabbitMQ channel and connection.
func (p *EventPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
