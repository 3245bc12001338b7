package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is one domain event on its way to the worker.
type Message struct {
	ID          string
	Type        string
	Body        []byte
	PublishedAt time.Time
}

// Publisher is the write half of a queue; services depend on it.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publisher
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory is a channel-backed queue for a single process.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 100
	}
	return &InMemory{ch: make(chan Message, size)}
}

// Publish blocks while the buffer is full.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel that closes when ctx ends.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Len reports buffered messages.
func (q *InMemory) Len() int { return len(q.ch) }

// RedisQueue is a Redis list used as a FIFO: LPUSH to publish, BRPOP to consume.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "campusattend:events"
	}
	return &RedisQueue{client: client, key: key}
}

// envelope is the list entry. Bodies must be JSON.
type envelope struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	PublishedAt time.Time       `json:"published_at"`
	Body        json.RawMessage `json:"body"`
}

func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	entry, err := encode(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, entry).Err()
}

// Consume polls with a 5 second BRPOP and backs off for a second after
// connection errors.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					select {
					case <-time.After(time.Second):
					case <-ctx.Done():
						return
					}
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			select {
			case out <- decode(res[1]):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func encode(msg Message) (string, error) {
	if !json.Valid(msg.Body) {
		return "", fmt.Errorf("queue: body of %q is not JSON", msg.Type)
	}
	b, err := json.Marshal(envelope{ID: msg.ID, Type: msg.Type, PublishedAt: msg.PublishedAt, Body: msg.Body})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decode never fails: an entry that is not an envelope comes back untyped
// so the consumer can report it.
func decode(s string) Message {
	var e envelope
	if err := json.Unmarshal([]byte(s), &e); err != nil || e.Type == "" {
		return Message{Body: []byte(s)}
	}
	return Message{ID: e.ID, Type: e.Type, Body: e.Body, PublishedAt: e.PublishedAt}
}
