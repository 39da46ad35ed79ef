package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	domainqueue "github.com/andrescamacho/takaro-connector/internal/domain/queue"
)

// RedisRelay publishes every routed event on a per-domain pub/sub channel so
// live consumers (dashboards, other connectors) can follow a domain.
type RedisRelay struct {
	client *redis.Client
	prefix string
}

func NewRedisRelay(client *redis.Client, prefix string) *RedisRelay {
	if prefix == "" {
		prefix = "takaro"
	}
	return &RedisRelay{client: client, prefix: prefix}
}

// Channel returns the pub/sub channel of domainID
func (r *RedisRelay) Channel(domainID string) string {
	return r.prefix + ":events:" + domainID
}

func (r *RedisRelay) Publish(ctx context.Context, job domainqueue.EventJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.Channel(job.DomainID), body).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe streams the events of domainID until ctx is done
func (r *RedisRelay) Subscribe(ctx context.Context, domainID string, fn func(domainqueue.EventJob)) error {
	sub := r.client.Subscribe(ctx, r.Channel(domainID))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var job domainqueue.EventJob
			if err := json.Unmarshal([]byte(msg.Payload), &job); err != nil {
				continue
			}
			fn(job)
		}
	}
}
