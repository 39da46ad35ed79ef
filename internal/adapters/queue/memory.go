// Package queue provides the transports behind the queue fabric: an
// in-process backend for single-node deployments and tests, and a Redis
// backend that survives restarts.
package queue

import (
	"context"
	"log/slog"
	"sync"

	domainqueue "github.com/andrescamacho/takaro-connector/internal/domain/queue"
)

type message struct {
	body    []byte
	attempt int
}

// MemoryBackend keeps one buffered channel per queue. Jobs are lost on
// process exit.
type MemoryBackend struct {
	mu          sync.Mutex
	queues      map[domainqueue.Name]chan message
	bufferSize  int
	maxAttempts int
	logger      *slog.Logger
	done        chan struct{}
	closeOnce   sync.Once
}

// NewMemoryBackend creates a backend whose queues hold up to bufferSize
// pending jobs before Enqueue blocks.
func NewMemoryBackend(bufferSize, maxAttempts int, logger *slog.Logger) *MemoryBackend {
	if bufferSize < 1 {
		bufferSize = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MemoryBackend{
		queues:      make(map[domainqueue.Name]chan message),
		bufferSize:  bufferSize,
		maxAttempts: maxAttempts,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

func (b *MemoryBackend) channel(name domainqueue.Name) chan message {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.queues[name]
	if !ok {
		ch = make(chan message, b.bufferSize)
		b.queues[name] = ch
	}
	return ch
}

// Enqueue blocks while the queue is full, until ctx is done or the backend closes
func (b *MemoryBackend) Enqueue(ctx context.Context, name domainqueue.Name, body []byte) error {
	return b.push(ctx, name, message{body: body, attempt: 1})
}

func (b *MemoryBackend) push(ctx context.Context, name domainqueue.Name, msg message) error {
	select {
	case <-b.done:
		return domainqueue.ErrClosed
	default:
	}

	select {
	case b.channel(name) <- msg:
		return nil
	case <-b.done:
		return domainqueue.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume runs concurrency goroutines against name until ctx is done or the
// backend closes. Failed jobs go back to the tail of the queue until
// maxAttempts is reached.
func (b *MemoryBackend) Consume(ctx context.Context, name domainqueue.Name, concurrency int, handler domainqueue.Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}
	ch := b.channel(name)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-b.done:
					return
				case msg := <-ch:
					b.handle(ctx, name, msg, handler)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func (b *MemoryBackend) handle(ctx context.Context, name domainqueue.Name, msg message, handler domainqueue.Handler) {
	err := handler(ctx, domainqueue.Delivery{Queue: name, Body: msg.body, Attempt: msg.attempt})
	if err == nil {
		return
	}

	logger := b.logger.With("queue", string(name), "attempt", msg.attempt)
	if domainqueue.IsPermanent(err) || msg.attempt >= b.maxAttempts {
		logger.Error("job dropped", "error", err)
		return
	}
	logger.Warn("job failed, retrying", "error", err)

	// A full queue must not block its own consumer
	retry := message{body: msg.body, attempt: msg.attempt + 1}
	go func() {
		if err := b.push(context.Background(), name, retry); err != nil {
			logger.Error("job lost on retry", "error", err)
		}
	}()
}

// Pending returns how many jobs wait in name
func (b *MemoryBackend) Pending(name domainqueue.Name) int {
	return len(b.channel(name))
}

func (b *MemoryBackend) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}
