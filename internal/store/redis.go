package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the client behind the event queue and the /healthz check.
type Redis struct {
	Client *redis.Client
	Addr   string
}

// NewRedis builds a client for addr. Connections are opened lazily.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     10,
	})
	return &Redis{Client: client, Addr: addr}
}

// Healthy reports whether the server answers a PING.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Wait pings every interval until the server answers or ctx ends.
func (r *Redis) Wait(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = time.Second
	}
	for {
		err := r.Client.Ping(ctx).Err()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(every):
		}
	}
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
