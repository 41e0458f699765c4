// README: RabbitMQ connection and confirm-mode channel for confirmation events.
package infra

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP bundles a connection with one publishing channel in confirm mode.
type AMQP struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// NewAMQP dials url, declares exchange as a durable topic exchange and puts
// the channel into publisher-confirm mode.
func NewAMQP(url, exchange string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp confirm mode: %w", err)
	}
	return &AMQP{Conn: conn, Channel: ch}, nil
}

func (a *AMQP) Close() error {
	if a == nil || a.Conn == nil {
		return nil
	}
	return a.Conn.Close()
}
