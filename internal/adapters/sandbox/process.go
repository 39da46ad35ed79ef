package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/andrescamacho/takaro-connector/internal/domain/execution"
	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// ChildCommand is the hidden subcommand that serves one invocation
const ChildCommand = "sandbox-exec"

const maxStderrBytes = 4096

// ProcessRunner re-executes a binary per invocation. The child starts with
// an empty environment and only learns what the CBOR invocation carries.
type ProcessRunner struct {
	executable string
	args       []string
	baseURL    string
}

// NewProcessRunner builds a runner for executable, defaulting to the running
// binary with the sandbox-exec subcommand.
func NewProcessRunner(executable string, args []string, baseURL string) (*ProcessRunner, error) {
	if executable == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate sandbox executable: %w", err)
		}
		executable = self
	}
	if args == nil {
		args = []string{ChildCommand}
	}
	return &ProcessRunner{executable: executable, args: args, baseURL: baseURL}, nil
}

func (r *ProcessRunner) Run(ctx context.Context, inv Invocation) (*execution.Result, error) {
	if inv.BaseURL == "" {
		inv.BaseURL = r.baseURL
	}

	var stdin bytes.Buffer
	if err := writeMessage(&stdin, inv); err != nil {
		return nil, fmt.Errorf("failed to encode invocation: %w", err)
	}

	var stdout bytes.Buffer
	stderr := &limitedBuffer{limit: maxStderrBytes}
	cmd := exec.CommandContext(ctx, r.executable, r.args...)
	cmd.Env = []string{}
	cmd.Stdin = &stdin
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return execution.Failed(nil, timeoutError(inv.Timeout)), nil
	}

	var out Outcome
	if err := readMessage(&stdout, &out); err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("sandbox process failed: %w: %s", runErr, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("failed to decode sandbox outcome: %w", err)
	}
	return out.result()
}

func (o *Outcome) result() (*execution.Result, error) {
	switch {
	case o.Unresolved != "":
		return nil, shared.NewUnresolvedDependencyError(o.Unresolved)
	case o.Error != "":
		return nil, errors.New(o.Error)
	}
	logs := o.Logs
	if logs == nil {
		logs = []execution.LogLine{}
	}
	return &execution.Result{Logs: logs, Success: o.Success}, nil
}

func outcomeOf(res *execution.Result, err error) Outcome {
	var unresolved *shared.UnresolvedDependencyError
	switch {
	case errors.As(err, &unresolved):
		return Outcome{Unresolved: unresolved.Specifier}
	case err != nil:
		return Outcome{Error: err.Error()}
	}
	return Outcome{Logs: res.Logs, Success: res.Success}
}

// ServeChild is the sandbox-exec entry point: it reads one invocation from
// r, evaluates it and writes the outcome to w.
func ServeChild(ctx context.Context, r io.Reader, w io.Writer, newPlatform func(baseURL string) Platform) error {
	var inv Invocation
	if err := readMessage(r, &inv); err != nil {
		return fmt.Errorf("failed to decode invocation: %w", err)
	}

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	var platform Platform
	if newPlatform != nil && inv.BaseURL != "" {
		platform = newPlatform(inv.BaseURL)
	}

	res, err := Evaluate(ctx, inv.Code, inv.Data, platform, inv.MaxLogLines)
	if err := writeMessage(w, outcomeOf(res, err)); err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	return nil
}

// limitedBuffer keeps the first limit bytes and discards the rest
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
