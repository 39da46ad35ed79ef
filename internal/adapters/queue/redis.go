package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	domainqueue "github.com/andrescamacho/takaro-connector/internal/domain/queue"
)

const defaultPollTimeout = time.Second

// envelope is the list element stored in Redis
type envelope struct {
	Attempt int    `json:"attempt"`
	Body    []byte `json:"body"`
}

// RedisBackend stores each queue as three lists:
//
//	<prefix>:<queue>:pending     LPUSH on enqueue, consumers pop from the right
//	<prefix>:<queue>:processing  jobs currently held by a consumer
//	<prefix>:<queue>:dead        jobs that ran out of attempts
//
// A consumer moves a job to processing atomically with BLMOVE and removes it
// once handled, so a crash leaves it in processing for Recover.
type RedisBackend struct {
	client      *redis.Client
	prefix      string
	maxAttempts int
	pollTimeout time.Duration
	logger      *slog.Logger
	closed      atomic.Bool
}

// NewRedisClient connects from a redis:// URL when given, otherwise from addr
func NewRedisClient(url, addr, password string, db int) (*redis.Client, error) {
	if url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}), nil
}

func NewRedisBackend(client *redis.Client, prefix string, maxAttempts int, logger *slog.Logger) *RedisBackend {
	if prefix == "" {
		prefix = "takaro"
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisBackend{
		client:      client,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		pollTimeout: defaultPollTimeout,
		logger:      logger,
	}
}

func (b *RedisBackend) key(name domainqueue.Name, list string) string {
	return b.prefix + ":" + string(name) + ":" + list
}

// Enqueue returns once Redis acknowledged the LPUSH
func (b *RedisBackend) Enqueue(ctx context.Context, name domainqueue.Name, body []byte) error {
	if b.closed.Load() {
		return domainqueue.ErrClosed
	}
	raw, err := json.Marshal(envelope{Attempt: 1, Body: body})
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := b.client.LPush(ctx, b.key(name, "pending"), raw).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", name, err)
	}
	return nil
}

// Consume blocks until ctx is done. A Redis error other than the poll
// timeout stops every consumer of name and is returned.
func (b *RedisBackend) Consume(ctx context.Context, name domainqueue.Name, concurrency int, handler domainqueue.Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			return b.consumeLoop(gctx, name, handler)
		})
	}

	err := g.Wait()
	if ctx.Err() != nil || b.closed.Load() {
		return nil
	}
	return err
}

func (b *RedisBackend) consumeLoop(ctx context.Context, name domainqueue.Name, handler domainqueue.Handler) error {
	pending := b.key(name, "pending")
	processing := b.key(name, "processing")

	for {
		if ctx.Err() != nil || b.closed.Load() {
			return nil
		}

		raw, err := b.client.BLMove(ctx, pending, processing, "RIGHT", "LEFT", b.pollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil || b.closed.Load() {
				return nil
			}
			return fmt.Errorf("failed to pop from %s: %w", name, err)
		}

		if err := b.handle(ctx, name, raw, handler); err != nil {
			return err
		}
	}
}

func (b *RedisBackend) handle(ctx context.Context, name domainqueue.Name, raw string, handler domainqueue.Handler) error {
	processing := b.key(name, "processing")
	logger := b.logger.With("queue", string(name))

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		logger.Error("malformed envelope moved to dead letters", "error", err)
		return b.settle(ctx, processing, raw, b.key(name, "dead"), raw)
	}

	herr := handler(ctx, domainqueue.Delivery{Queue: name, Body: env.Body, Attempt: env.Attempt})
	if herr == nil {
		if err := b.client.LRem(ctx, processing, 1, raw).Err(); err != nil {
			return fmt.Errorf("failed to ack %s job: %w", name, err)
		}
		return nil
	}

	logger = logger.With("attempt", env.Attempt)
	if domainqueue.IsPermanent(herr) || env.Attempt >= b.maxAttempts {
		logger.Error("job moved to dead letters", "error", herr)
		return b.settle(ctx, processing, raw, b.key(name, "dead"), raw)
	}

	logger.Warn("job failed, retrying", "error", herr)
	next, err := json.Marshal(envelope{Attempt: env.Attempt + 1, Body: env.Body})
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	return b.settle(ctx, processing, raw, b.key(name, "pending"), string(next))
}

// settle removes raw from processing and pushes value onto target in one transaction
func (b *RedisBackend) settle(ctx context.Context, processing, raw, target, value string) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, processing, 1, raw)
		pipe.LPush(ctx, target, value)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to settle job: %w", err)
	}
	return nil
}

// Recover moves jobs left in processing by a crashed process back to the
// head of pending. Call it before any consumer starts.
func (b *RedisBackend) Recover(ctx context.Context, names ...domainqueue.Name) (int, error) {
	moved := 0
	for _, name := range names {
		for {
			err := b.client.LMove(ctx, b.key(name, "processing"), b.key(name, "pending"), "RIGHT", "RIGHT").Err()
			if errors.Is(err, redis.Nil) {
				break
			}
			if err != nil {
				return moved, fmt.Errorf("failed to recover %s: %w", name, err)
			}
			moved++
		}
	}
	return moved, nil
}

// Depth returns the number of pending and dead jobs of name
func (b *RedisBackend) Depth(ctx context.Context, name domainqueue.Name) (pending, dead int64, err error) {
	pending, err = b.client.LLen(ctx, b.key(name, "pending")).Result()
	if err != nil {
		return 0, 0, err
	}
	dead, err = b.client.LLen(ctx, b.key(name, "dead")).Result()
	if err != nil {
		return 0, 0, err
	}
	return pending, dead, nil
}

// Close stops consumers after their current poll. The client is owned by
// the caller.
func (b *RedisBackend) Close() error {
	b.closed.Store(true)
	return nil
}
