package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/andrescamacho/takaro-connector/internal/adapters/auth"
	"github.com/andrescamacho/takaro-connector/internal/domain/execution"
)

// DefaultTimeout bounds an execution when none is configured
const DefaultTimeout = 30 * time.Second

type ExecutorOptions struct {
	BaseURL     string
	Timeout     time.Duration
	MaxLogLines int
	Logger      *slog.Logger
}

// Executor implements execution.Executor on top of a Runner. It refuses
// tokens scoped to another domain and bounds every run by Timeout.
type Executor struct {
	runner Runner
	opts   ExecutorOptions
}

func NewExecutor(runner Runner, opts ExecutorOptions) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxLogLines <= 0 {
		opts.MaxLogLines = DefaultMaxLogLines
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{runner: runner, opts: opts}
}

func (e *Executor) Execute(ctx context.Context, req execution.Request) (*execution.Result, error) {
	if err := auth.CheckDomain(req.Token, req.DomainID); err != nil {
		return nil, err
	}

	data, err := augment(req.Data, req.Token, e.opts.BaseURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	started := time.Now()
	res, err := e.runner.Run(ctx, Invocation{
		FunctionID:  req.FunctionID,
		DomainID:    req.DomainID,
		Code:        req.Code,
		Data:        data,
		Token:       req.Token,
		BaseURL:     e.opts.BaseURL,
		MaxLogLines: e.opts.MaxLogLines,
		Timeout:     e.opts.Timeout,
	})
	e.opts.Logger.Debug("function evaluated",
		"function_id", req.FunctionID,
		"domain_id", req.DomainID,
		"duration", time.Since(started),
		"error", err,
	)
	return res, err
}

// augment returns a JSON-shaped copy of data carrying token and url
func augment(data map[string]any, token, baseURL string) (map[string]any, error) {
	out := map[string]any{}
	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode function data: %w", err)
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("failed to decode function data: %w", err)
		}
	}
	out["token"] = token
	out["url"] = baseURL
	return out, nil
}
