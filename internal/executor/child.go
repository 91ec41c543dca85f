package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// childEnv marks a process started to run a single fragment. Its value is
// the JSON-encoded Policy for that run.
const childEnv = "RUNBOX_EXECUTOR_CHILD"

// childGrace is how long the parent waits past the policy timeout for a
// child that has not reported before killing it.
const childGrace = 2 * time.Second

// childReportFD is the descriptor a child writes its report to. The
// fragment keeps stdout and stderr to itself.
const childReportFD = 3

type childReport struct {
	Duration time.Duration `json:"duration"`
	Kind     FaultKind     `json:"kind,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// IsChild reports whether this process was started by an Executor to run
// one fragment.
func IsChild() bool {
	return os.Getenv(childEnv) != ""
}

// ServeChild runs the fragment read from stdin under the policy passed in
// the environment. The fragment writes straight to the process's stdout and
// stderr; the outcome goes to the report descriptor. It returns the process
// exit code.
func ServeChild() int {
	var policy Policy
	if err := json.Unmarshal([]byte(os.Getenv(childEnv)), &policy); err != nil {
		fmt.Fprintf(os.Stderr, "runbox: invalid %s: %v\n", childEnv, err)
		return 2
	}

	report := os.NewFile(childReportFD, "report")
	if report == nil {
		fmt.Fprintln(os.Stderr, "runbox: report descriptor missing")
		return 2
	}
	defer report.Close()

	src, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runbox: reading fragment: %v\n", err)
		return 2
	}

	elapsed, fault := New(policy, zerolog.Nop()).execute(context.Background(), string(src), os.Stdout, os.Stderr)

	rep := childReport{Duration: elapsed}
	if fault != nil {
		rep.Kind = fault.Kind
		rep.Message = fault.Message
	}
	if err := json.NewEncoder(report).Encode(rep); err != nil {
		fmt.Fprintf(os.Stderr, "runbox: writing report: %v\n", err)
		return 2
	}
	return 0
}

// runChild runs fragment in a new process and copies its streams into the
// sinks. A child that dies before reporting is a crash fault, and its stderr
// carries the runtime's panic message.
func (e *Executor) runChild(ctx context.Context, fragment string, stdout, stderr *sink) (time.Duration, *Fault) {
	policy, err := json.Marshal(e.policy)
	if err != nil {
		return 0, internalFault(fmt.Errorf("encoding policy: %w", err))
	}

	if e.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.policy.Timeout+childGrace)
		defer cancel()
	}

	reportR, reportW, err := os.Pipe()
	if err != nil {
		return 0, internalFault(fmt.Errorf("creating report pipe: %w", err))
	}
	defer reportR.Close()

	cmd := exec.CommandContext(ctx, e.child[0], e.child[1:]...)
	cmd.Env = append(os.Environ(), childEnv+"="+string(policy), "GOTRACEBACK=none")
	cmd.Stdin = strings.NewReader(fragment)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.ExtraFiles = []*os.File{reportW}
	cmd.WaitDelay = drainDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		reportW.Close()
		return 0, internalFault(fmt.Errorf("starting child: %w", err))
	}
	reportW.Close()

	var (
		rep       childReport
		decodeErr error
	)
	decoded := make(chan struct{})
	go func() {
		defer close(decoded)
		decodeErr = json.NewDecoder(reportR).Decode(&rep)
	}()

	waitErr := cmd.Wait()
	elapsed := time.Since(start)
	reportR.SetReadDeadline(time.Now().Add(drainDelay))
	<-decoded

	if decodeErr == nil {
		if rep.Kind == "" {
			return rep.Duration, nil
		}
		return rep.Duration, &Fault{Kind: rep.Kind, Message: rep.Message}
	}
	if err := ctx.Err(); err != nil {
		return elapsed, classify(err, elapsed)
	}

	e.log.Warn().Err(waitErr).Msg("child exited without a report")
	msg := "fragment process exited unexpectedly"
	if waitErr != nil {
		msg += ": " + waitErr.Error()
	}
	return elapsed, &Fault{Kind: FaultCrash, Message: msg, Err: waitErr}
}
