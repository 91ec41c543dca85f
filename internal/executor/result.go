package executor

import (
	"fmt"
	"time"
)

// Status is the binary outcome of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// FaultKind tags what stopped a fragment early.
type FaultKind string

const (
	FaultParse    FaultKind = "parse"
	FaultCompile  FaultKind = "compile"
	FaultPanic    FaultKind = "panic"
	FaultTimeout  FaultKind = "timeout"
	FaultCanceled FaultKind = "canceled"
	FaultCrash    FaultKind = "crash"    // the child process died before reporting
	FaultInternal FaultKind = "internal" // the host could not set up the run
)

// Fault describes an unhandled condition raised while a fragment ran.
type Fault struct {
	Kind    FaultKind
	Message string
	Err     error
}

func (f *Fault) Error() string {
	return f.Message
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Result is the outcome of a single run. Only the first four fields are
// serialized.
type Result struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	ExecutionTime string `json:"executionTime"`
	Status        Status `json:"status"`

	Duration  time.Duration `json:"-"`
	Fault     *Fault        `json:"-"`
	Truncated bool          `json:"-"`
}

// Failed reports whether the fragment raised a fault.
func (r Result) Failed() bool {
	return r.Status == StatusFailure
}

// FaultKind returns the fault tag, or "" for a successful run.
func (r Result) FaultKind() FaultKind {
	if r.Fault == nil {
		return ""
	}
	return r.Fault.Kind
}

// FormatDuration renders d as seconds with millisecond precision, e.g. "0.014s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
