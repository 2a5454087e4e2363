package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange notifications are published to.
// Routing keys are "notify.<kind>".
const DefaultExchange = "testbot.notifications"

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPNotifier hands payloads to a RabbitMQ topic exchange; the messaging
// gateway consumes them and talks to the platform.
type AMQPNotifier struct {
	conn     *amqp091.Connection
	channel  publisher
	exchange string
}

func NewAMQPNotifier(uri, exchange string) (*AMQPNotifier, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp091.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	log.Printf("notify: publishing to exchange %s", exchange)
	return &AMQPNotifier{conn: conn, channel: ch, exchange: exchange}, nil
}

func (a *AMQPNotifier) Notify(ctx context.Context, recipient string, p Payload) error {
	body, err := json.Marshal(webhookBody{Recipient: recipient, Payload: p})
	if err != nil {
		return Permanent(err)
	}
	return a.channel.PublishWithContext(ctx,
		a.exchange,
		"notify."+string(p.Kind),
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
			Headers: amqp091.Table{
				"kind":      string(p.Kind),
				"recipient": recipient,
			},
		},
	)
}

func (a *AMQPNotifier) Close() error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}
