package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/runbox/internal/executor"
	"github.com/michaelbrown/runbox/internal/storage"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session",
	Long: `Type Go statements line by line. A blank line runs everything entered
since the last run as one fragment. Each run starts from a clean slate.

Commands: /help, /reset, /last, /quit`,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

// replSession holds the pending buffer and the last result.
type replSession struct {
	runner executor.Runner
	store  storage.Store
	log    zerolog.Logger
	out    io.Writer

	buf  []string
	last *executor.Result
}

// errQuit is returned by handleLine when the user asks to leave.
var errQuit = errors.New("quit")

// handleLine processes one input line. A blank line runs the buffer.
func (s *replSession) handleLine(ctx context.Context, line string) error {
	trimmed := strings.TrimSpace(line)

	if isCommand(trimmed) {
		return s.handleCommand(trimmed)
	}

	if trimmed == "" {
		if len(s.buf) == 0 {
			return nil
		}
		s.run(ctx)
		return nil
	}

	s.buf = append(s.buf, line)
	return nil
}

func isCommand(line string) bool {
	return strings.HasPrefix(line, "/") && !strings.HasPrefix(line, "//") && !strings.HasPrefix(line, "/*")
}

func (s *replSession) handleCommand(input string) error {
	switch strings.Fields(input)[0] {
	case "/quit", "/exit":
		return errQuit
	case "/reset":
		s.buf = nil
		fmt.Fprintln(s.out, "Buffer cleared.")
	case "/last":
		if s.last == nil {
			fmt.Fprintln(s.out, "Nothing has run yet.")
			return nil
		}
		s.print(*s.last)
	case "/help":
		fmt.Fprintln(s.out, "Enter Go statements; a blank line runs them.")
		fmt.Fprintln(s.out, "  /reset  discard the pending lines")
		fmt.Fprintln(s.out, "  /last   show the previous result again")
		fmt.Fprintln(s.out, "  /quit   exit")
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (try /help)\n", input)
	}
	return nil
}

func (s *replSession) run(ctx context.Context) {
	code := strings.Join(s.buf, "\n") + "\n"
	s.buf = nil

	res := s.runner.Run(ctx, code)
	s.last = &res

	if s.store != nil {
		rec := storage.NewExecution(storage.SourceREPL, code, res)
		if err := s.store.SaveExecution(context.WithoutCancel(ctx), rec); err != nil {
			s.log.Error().Err(err).Msg("saving execution")
		}
	}

	s.print(res)
}

func (s *replSession) print(res executor.Result) {
	if res.Stdout != "" {
		fmt.Fprint(s.out, res.Stdout)
		if !strings.HasSuffix(res.Stdout, "\n") {
			fmt.Fprintln(s.out)
		}
	}
	if res.Stderr != "" {
		for _, line := range strings.Split(strings.TrimRight(res.Stderr, "\n"), "\n") {
			fmt.Fprintf(s.out, "\033[31m%s\033[0m\n", line)
		}
	}
	fmt.Fprintf(s.out, "\033[90m[%s %s]\033[0m\n", res.Status, res.ExecutionTime)
}

func runREPL(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".runbox", "repl_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36mgo>\033[0m ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	sess := &replSession{
		runner: a.exec,
		store:  a.store,
		log:    a.log,
		out:    rl.Stdout(),
	}

	fmt.Fprintf(sess.out, "Runbox %s - type /help for commands, /quit to exit\n\n", version)

	// Ctrl+C while a fragment runs cancels that run only.
	var (
		mu        sync.Mutex
		runCancel context.CancelFunc
	)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			mu.Lock()
			if runCancel != nil {
				runCancel()
			}
			mu.Unlock()
		}
	}()

	for {
		if len(sess.buf) > 0 {
			rl.SetPrompt("\033[36m..>\033[0m ")
		} else {
			rl.SetPrompt("\033[36mgo>\033[0m ")
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) && len(sess.buf) > 0 {
				sess.buf = nil
				continue
			}
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(sess.out, "Goodbye!")
				return nil
			}
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		mu.Lock()
		runCancel = cancel
		mu.Unlock()

		err = sess.handleLine(ctx, line)

		mu.Lock()
		runCancel = nil
		mu.Unlock()
		cancel()

		if errors.Is(err, errQuit) {
			fmt.Fprintln(sess.out, "Goodbye!")
			return nil
		}
	}
}
