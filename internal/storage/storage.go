package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/michaelbrown/runbox/internal/executor"
)

// ErrNotFound is returned when no execution matches an id or prefix.
var ErrNotFound = errors.New("execution not found")

// Source identifies the front end that submitted a fragment.
type Source string

const (
	SourceCLI  Source = "cli"
	SourceHTTP Source = "http"
	SourceWS   Source = "ws"
	SourceMCP  Source = "mcp"
	SourceREPL Source = "repl"
)

// Execution is a recorded run.
type Execution struct {
	ID            string          `json:"id" yaml:"id"`
	Source        Source          `json:"source" yaml:"source"`
	Code          string          `json:"code" yaml:"code"`
	Stdout        string          `json:"stdout" yaml:"stdout"`
	Stderr        string          `json:"stderr" yaml:"stderr"`
	ExecutionTime string          `json:"executionTime" yaml:"execution_time"`
	Status        executor.Status `json:"status" yaml:"status"`
	FaultKind     string          `json:"faultKind,omitempty" yaml:"fault_kind,omitempty"`
	DurationMS    int64           `json:"durationMs" yaml:"duration_ms"`
	CreatedAt     time.Time       `json:"createdAt" yaml:"created_at"`
}

// NewExecution builds a record for res with a fresh id.
func NewExecution(source Source, code string, res executor.Result) *Execution {
	return &Execution{
		ID:            uuid.New().String(),
		Source:        source,
		Code:          code,
		Stdout:        res.Stdout,
		Stderr:        res.Stderr,
		ExecutionTime: res.ExecutionTime,
		Status:        res.Status,
		FaultKind:     string(res.FaultKind()),
		DurationMS:    res.Duration.Milliseconds(),
	}
}

// Result returns the four-field result recorded for e.
func (e *Execution) Result() executor.Result {
	return executor.Result{
		Stdout:        e.Stdout,
		Stderr:        e.Stderr,
		ExecutionTime: e.ExecutionTime,
		Status:        e.Status,
		Duration:      time.Duration(e.DurationMS) * time.Millisecond,
	}
}

// ListOptions controls filtering and pagination for ListExecutions.
type ListOptions struct {
	Status executor.Status
	Source Source
	Limit  int
	Offset int
}

// Store is the persistence interface for execution history.
type Store interface {
	// SaveExecution inserts a record. The ID field must be set by the caller.
	SaveExecution(ctx context.Context, e *Execution) error

	// GetExecution returns an execution by ID or unique ID prefix.
	GetExecution(ctx context.Context, id string) (*Execution, error)

	// ListExecutions returns executions ordered by created_at descending.
	ListExecutions(ctx context.Context, opts ListOptions) ([]Execution, error)

	// DeleteExecution removes an execution by ID or unique ID prefix.
	DeleteExecution(ctx context.Context, id string) error

	// PruneExecutions removes executions created before the given time and
	// returns how many were removed.
	PruneExecutions(ctx context.Context, before time.Time) (int64, error)

	// Close releases resources.
	Close() error
}
