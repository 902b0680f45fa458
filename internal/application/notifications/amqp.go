package notifications

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes events to a durable RabbitMQ queue. Each publish dials its own
// connection so a broker outage never leaves a dead channel behind.
type AMQPPublisher struct {
	URL   string
	Queue string
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", p.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(ev.Type),
		MessageId:    ev.EntityID.String(),
		Body:         body,
	})
}

// Ping dials the broker; used by the health check.
func (p *AMQPPublisher) Ping() error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		return err
	}
	return conn.Close()
}
