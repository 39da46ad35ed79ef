package execution

import (
	"context"
	"time"

	"github.com/andrescamacho/takaro-connector/internal/domain/function"
)

// LogLevel of a captured line
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelError LogLevel = "error"
)

// LogLine is one line of output captured from user code
type LogLine struct {
	Level LogLevel `json:"level"`
	Msg   string   `json:"msg"`
}

// Result is produced once per job and never mutated afterwards
type Result struct {
	Logs    []LogLine `json:"logs"`
	Success bool      `json:"success"`
}

// Failed builds an unsuccessful result carrying err as its final log line
func Failed(logs []LogLine, err error) *Result {
	if logs == nil {
		logs = []LogLine{}
	}
	if err != nil {
		logs = append(logs, LogLine{Level: LogLevelError, Msg: err.Error()})
	}
	return &Result{Logs: logs, Success: false}
}

// Request is everything a sandbox needs for one invocation
type Request struct {
	FunctionID string
	DomainID   string
	Code       string
	Data       map[string]any
	Token      string
}

// Executor runs user code in an isolated context. Failures inside user code
// are reported through Result; an error return means the code could not be
// run at all (unresolved import, scope violation, sandbox crash).
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// TokenSource hands out short-lived credentials scoped to one domain
type TokenSource interface {
	Token(ctx context.Context, domainID string) (string, error)
}

// Record is the persisted outcome of one job
type Record struct {
	JobID        string
	FunctionID   string
	DomainID     string
	GameServerID string
	ItemKind     function.ItemKind
	ItemID       string
	Success      bool
	Logs         []LogLine
	ArchiveKey   string
	StartedAt    time.Time
	Duration     time.Duration
}

// Repository persists execution records keyed by job id
type Repository interface {
	// Exists reports whether jobID already ran
	Exists(ctx context.Context, jobID string) (bool, error)

	// Save stores rec. It returns false without error when a record with the
	// same job id already exists.
	Save(ctx context.Context, rec *Record) (bool, error)

	ListByFunction(ctx context.Context, functionID string, limit int) ([]*Record, error)
}

// LogArchive stores execution logs outside the database
type LogArchive interface {
	Archive(ctx context.Context, rec *Record) (string, error)
}
