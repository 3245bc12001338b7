package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue publishes to and consumes from one durable RabbitMQ queue.
// Message fields travel in the MessageId, Type and Timestamp properties.
type AMQPQueue struct {
	conn *amqp.Connection
	name string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewAMQPQueue dials the broker and declares the queue.
func NewAMQPQueue(url, name string) (*AMQPQueue, error) {
	if name == "" {
		name = "campusattend.events"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	return &AMQPQueue{conn: conn, name: name, ch: ch}, nil
}

// Publish sends a persistent message through the default exchange.
func (q *AMQPQueue) Publish(ctx context.Context, msg Message) error {
	published := msg.PublishedAt
	if published.IsZero() {
		published = time.Now().UTC()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    published,
		Type:         msg.Type,
		Body:         msg.Body,
	})
}

// Consume acks each delivery once it has been handed to the reader.
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Message, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel open: %w", err)
	}
	if err := ch.Qos(50, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	deliveries, err := ch.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp consume: %w", err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		defer func() { _ = ch.Close() }()
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- Message{ID: d.MessageId, Type: d.Type, Body: d.Body, PublishedAt: d.Timestamp}:
					_ = d.Ack(false)
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close closes the channel and connection.
func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil {
		_ = q.ch.Close()
	}
	return q.conn.Close()
}
