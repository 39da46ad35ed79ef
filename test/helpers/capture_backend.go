package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/andrescamacho/takaro-connector/internal/domain/queue"
)

// CaptureBackend is a queue backend that only records what was enqueued.
// Consume blocks until its context is done.
type CaptureBackend struct {
	mu     sync.Mutex
	bodies map[queue.Name][][]byte
	err    error
}

func NewCaptureBackend() *CaptureBackend {
	return &CaptureBackend{bodies: make(map[queue.Name][][]byte)}
}

// FailWith makes every later Enqueue return err
func (b *CaptureBackend) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *CaptureBackend) Enqueue(ctx context.Context, name queue.Name, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.bodies[name] = append(b.bodies[name], append([]byte(nil), body...))
	return nil
}

func (b *CaptureBackend) Consume(ctx context.Context, name queue.Name, concurrency int, handler queue.Handler) error {
	<-ctx.Done()
	return nil
}

func (b *CaptureBackend) Close() error { return nil }

func (b *CaptureBackend) Count(name queue.Name) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bodies[name])
}

// DecodeJobs decodes everything enqueued on name as T
func DecodeJobs[T any](b *CaptureBackend, name queue.Name) ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	jobs := make([]T, 0, len(b.bodies[name]))
	for _, body := range b.bodies[name] {
		var job T
		if err := json.Unmarshal(body, &job); err != nil {
			return nil, fmt.Errorf("failed to decode %s job: %w", name, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Jobs is DecodeJobs failing t on malformed bodies
func Jobs[T any](t *testing.T, b *CaptureBackend, name queue.Name) []T {
	t.Helper()
	jobs, err := DecodeJobs[T](b, name)
	if err != nil {
		t.Fatal(err)
	}
	return jobs
}
