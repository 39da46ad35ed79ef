package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/andrescamacho/takaro-connector/internal/domain/execution"
)

// Runner evaluates one invocation somewhere: in this process, in a child
// process or remotely. ctx carries the execution deadline.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*execution.Result, error)
}

// InProcessRunner evaluates code on a goroutine of the worker process
type InProcessRunner struct {
	platform Platform
}

func NewInProcessRunner(platform Platform) *InProcessRunner {
	return &InProcessRunner{platform: platform}
}

type evaluation struct {
	result *execution.Result
	err    error
}

// Run returns as soon as ctx is done even if the VM has not yet reached its
// next instruction-count check.
func (r *InProcessRunner) Run(ctx context.Context, inv Invocation) (*execution.Result, error) {
	s := newSession(ctx, inv.Data, r.platform, inv.MaxLogLines)
	done := make(chan evaluation, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- evaluation{err: fmt.Errorf("sandbox panic: %v", p)}
			}
		}()
		res, err := s.run(inv.Code)
		done <- evaluation{result: res, err: err}
	}()

	select {
	case ev := <-done:
		return ev.result, ev.err
	case <-ctx.Done():
		return execution.Failed(s.logs.snapshot(), timeoutError(inv.Timeout)), nil
	}
}

func timeoutError(limit time.Duration) error {
	if limit <= 0 {
		return errTimedOut
	}
	return fmt.Errorf("%w after %s", errTimedOut, limit)
}
