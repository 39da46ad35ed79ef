package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by backends after Close
var ErrClosed = errors.New("queue closed")

// Delivery is one received job
type Delivery struct {
	Queue   Name
	Body    []byte
	Attempt int
}

// Handler processes a delivery. A nil return acknowledges it; an error
// schedules a redelivery unless it is Permanent or attempts are exhausted.
type Handler func(ctx context.Context, d Delivery) error

// Backend is the transport under the fabric.
// Delivery is at-least-once: handlers must tolerate duplicates.
type Backend interface {
	// Enqueue returns once the backend accepted body
	Enqueue(ctx context.Context, name Name, body []byte) error

	// Consume runs concurrency handlers against name until ctx is done.
	// It returns a non-nil error only for transport failures.
	Consume(ctx context.Context, name Name, concurrency int, handler Handler) error

	Close() error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
