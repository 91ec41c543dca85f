// Package executor runs Go source fragments in-process with an embedded
// interpreter and reports captured output, elapsed time and a success/failure
// status.
//
// Each run gets its own interpreter and its own output sinks, so runs share no
// mutable state and may execute concurrently. There is no OS-level isolation:
// a fragment can do anything the interpreter's symbol table allows. An
// Executor built WithChildProcess moves each run into a short-lived process
// so that a fragment crashing the Go runtime takes down only that process.
package executor

import (
	"context"
	"errors"
	"fmt"
	"go/scanner"
	"go/token"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"github.com/traefik/yaegi/stdlib/unrestricted"
)

// Runner runs a fragment and reports its outcome.
type Runner interface {
	Run(ctx context.Context, fragment string) Result
}

// Executor runs fragments under a Policy.
type Executor struct {
	policy Policy
	log    zerolog.Logger
	child  []string // argv of the child process; nil runs fragments in-process
}

// New creates an Executor with the given policy.
func New(policy Policy, log zerolog.Logger) *Executor {
	return &Executor{
		policy: policy,
		log:    log.With().Str("component", "executor").Logger(),
	}
}

// Policy returns the policy runs are executed under.
func (e *Executor) Policy() Policy {
	return e.policy
}

// WithPolicy returns a copy of e that uses p.
func (e *Executor) WithPolicy(p Policy) *Executor {
	return &Executor{policy: p, log: e.log, child: e.child}
}

// WithChildProcess returns a copy of e that runs every fragment in a fresh
// process started from argv. That program must call ServeChild when IsChild
// reports true. A panic on a goroutine the fragment starts then ends the
// child instead of the caller.
func (e *Executor) WithChildProcess(argv ...string) *Executor {
	return &Executor{policy: e.policy, log: e.log, child: argv}
}

// Run executes fragment and always returns a fully populated Result. Faults
// raised by the fragment, including parse errors, panics and deadline expiry,
// are reported through the Result and never returned or re-panicked.
func (e *Executor) Run(ctx context.Context, fragment string) Result {
	stdout := newSink(e.policy.MaxOutput)
	stderr := newSink(e.policy.MaxOutput)

	var (
		elapsed time.Duration
		fault   *Fault
	)
	if len(e.child) > 0 {
		elapsed, fault = e.runChild(ctx, fragment, stdout, stderr)
	} else {
		elapsed, fault = e.runLocal(ctx, fragment, stdout, stderr)
	}

	stdout.seal()
	stderr.seal()

	res := Result{
		ExecutionTime: FormatDuration(elapsed),
		Duration:      max(elapsed, 0),
		Status:        StatusSuccess,
	}
	if fault != nil {
		res.Fault = fault
		res.Status = StatusFailure
		stderr.appendLine(fault.Message)
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.Truncated() || stderr.Truncated()

	e.log.Debug().
		Str("status", string(res.Status)).
		Str("fault", string(res.FaultKind())).
		Bool("child", len(e.child) > 0).
		Dur("elapsed", elapsed).
		Int("stdout_bytes", len(res.Stdout)).
		Int("stderr_bytes", len(res.Stderr)).
		Msg("fragment finished")

	return res
}

// runLocal evaluates fragment in this process. The interpreter only hands
// *os.File streams to the fragment's os.Stdout and os.Stderr, so each stream
// goes through its own pipe into the sink.
func (e *Executor) runLocal(ctx context.Context, fragment string, stdout, stderr *sink) (time.Duration, *Fault) {
	outW, waitOut, err := pipeTo(stdout)
	if err != nil {
		return 0, internalFault(fmt.Errorf("creating stdout pipe: %w", err))
	}
	errW, waitErr, err := pipeTo(stderr)
	if err != nil {
		waitOut()
		return 0, internalFault(fmt.Errorf("creating stderr pipe: %w", err))
	}

	elapsed, fault := e.execute(ctx, fragment, outW, errW)

	waitOut()
	waitErr()
	return elapsed, fault
}

// execute applies the policy deadline and evaluates fragment with the given
// streams, reporting how long evaluation took.
func (e *Executor) execute(ctx context.Context, fragment string, stdout, stderr *os.File) (time.Duration, *Fault) {
	if e.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.policy.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := e.evaluate(ctx, fragment, stdout, stderr)
	elapsed := time.Since(start)

	if err != nil {
		return elapsed, classify(err, elapsed)
	}
	return elapsed, nil
}

// evaluate builds a fresh interpreter wired to the given streams and runs
// fragment in it. The fragment reads an empty stdin.
func (e *Executor) evaluate(ctx context.Context, fragment string, stdout, stderr *os.File) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = interp.Panic{Value: r}
		}
	}()

	stdin, err := os.Open(os.DevNull)
	if err != nil {
		return hostError{fmt.Errorf("opening %s: %w", os.DevNull, err)}
	}
	defer stdin.Close()

	opts := interp.Options{
		Stdin:        stdin,
		Stdout:       stdout,
		Stderr:       stderr,
		Args:         []string{"fragment"},
		Env:          []string{},
		Unrestricted: e.policy.Unrestricted,
	}
	i := interp.New(opts)

	if err := i.Use(stdlib.Symbols); err != nil {
		return hostError{fmt.Errorf("loading stdlib symbols: %w", err)}
	}
	if e.policy.Unrestricted {
		if err := i.Use(unrestricted.Symbols); err != nil {
			return hostError{fmt.Errorf("loading unrestricted symbols: %w", err)}
		}
	}

	if hasPackageClause(fragment) {
		_, err = i.EvalWithContext(ctx, fragment)
		return err
	}

	if e.policy.AutoImport {
		i.ImportUsed()
	}
	imports, body := splitImports(fragment)
	if imports != "" {
		if _, err := i.EvalWithContext(ctx, imports); err != nil {
			return err
		}
	}
	_, err = i.EvalWithContext(ctx, body)
	return err
}

// hasPackageClause reports whether src starts with a package clause, in
// which case it is a full program that brings its own imports.
func hasPackageClause(src string) bool {
	s, _ := newScanner(src)
	_, tok, _ := s.Scan()
	return tok == token.PACKAGE
}

// splitImports separates the import declarations at the head of a bare
// fragment from the statements that follow them. The interpreter takes
// either declarations or statements in one evaluation, not both. body keeps
// the original line numbers. A fragment without leading imports, or whose
// imports do not scan cleanly, comes back whole as body.
func splitImports(src string) (imports, body string) {
	s, file := newScanner(src)

	pos, tok, _ := s.Scan()
	if tok != token.IMPORT {
		return "", src
	}
	for tok == token.IMPORT {
		if !scanImportSpec(s) {
			return "", src
		}
		if _, tok, _ = s.Scan(); tok != token.SEMICOLON {
			return "", src
		}
		pos, tok, _ = s.Scan()
	}

	cut := len(src)
	if tok != token.EOF {
		cut = file.Offset(pos)
	}
	imports = src[:cut]
	return imports, strings.Repeat("\n", strings.Count(imports, "\n")) + src[cut:]
}

// scanImportSpec consumes what follows the import keyword: a single spec
// with an optional name, or a parenthesized group.
func scanImportSpec(s *scanner.Scanner) bool {
	_, tok, _ := s.Scan()
	switch tok {
	case token.LPAREN:
		for {
			_, tok, _ = s.Scan()
			switch tok {
			case token.RPAREN:
				return true
			case token.EOF, token.ILLEGAL:
				return false
			}
		}
	case token.IDENT, token.PERIOD:
		_, tok, _ = s.Scan()
		return tok == token.STRING
	default:
		return tok == token.STRING
	}
}

func newScanner(src string) (*scanner.Scanner, *token.File) {
	fset := token.NewFileSet()
	file := fset.AddFile("fragment", fset.Base(), len(src))

	s := new(scanner.Scanner)
	s.Init(file, []byte(src), nil, 0)
	return s, file
}

// hostError marks a failure of the host rather than of the fragment.
type hostError struct {
	err error
}

func (h hostError) Error() string { return h.err.Error() }
func (h hostError) Unwrap() error { return h.err }

func internalFault(err error) *Fault {
	return &Fault{Kind: FaultInternal, Message: err.Error(), Err: err}
}

func classify(err error, elapsed time.Duration) *Fault {
	var (
		host    hostError
		p       interp.Panic
		errList scanner.ErrorList
	)
	switch {
	case errors.As(err, &host):
		return internalFault(err)
	case errors.Is(err, context.DeadlineExceeded):
		return &Fault{
			Kind:    FaultTimeout,
			Message: fmt.Sprintf("execution timed out after %s", elapsed.Round(time.Millisecond)),
			Err:     err,
		}
	case errors.Is(err, context.Canceled):
		return &Fault{Kind: FaultCanceled, Message: "execution canceled", Err: err}
	case errors.As(err, &p):
		return &Fault{Kind: FaultPanic, Message: p.Error(), Err: err}
	case errors.As(err, &errList):
		return &Fault{Kind: FaultParse, Message: err.Error(), Err: err}
	default:
		return &Fault{Kind: FaultCompile, Message: err.Error(), Err: err}
	}
}
