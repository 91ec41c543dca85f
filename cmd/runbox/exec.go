package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/runbox/internal/executor"
	"github.com/michaelbrown/runbox/internal/storage"
)

var (
	fileFlag   string
	recordFlag bool
)

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Run a fragment from stdin or a file and print the result as JSON",
	Long: `Read a Go fragment in full, run it, and print one JSON line with
stdout, stderr, executionTime and status. The exit code is 0 whenever
the fragment was run, even if it failed; check the status field.

A fragment is either bare statements, optionally preceded by import
declarations, or a full program starting with a package clause.

Examples:
  echo 'fmt.Println(1 + 2)' | runbox exec
  printf 'import "strings"\nfmt.Println(strings.ToUpper("hi"))' | runbox exec
  runbox exec --file snippet.go --profile strict --record`,
	Args: cobra.NoArgs,
	RunE: runExecCmd,
}

func init() {
	execCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Read the fragment from a file instead of stdin")
	execCmd.Flags().BoolVar(&recordFlag, "record", false, "Record the execution in history")
	rootCmd.AddCommand(execCmd)
}

func runExecCmd(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	in := cmd.InOrStdin()
	if fileFlag != "" {
		f, err := os.Open(fileFlag)
		if err != nil {
			return fmt.Errorf("opening fragment: %w", err)
		}
		defer f.Close()
		in = f
	}

	var store storage.Store
	if recordFlag {
		store = a.store
	}
	return runExec(cmd.Context(), in, cmd.OutOrStdout(), a.exec, store, a.log)
}

// runExec reads the whole fragment from r, runs it and writes the result
// to w as a single JSON line. store may be nil.
func runExec(ctx context.Context, r io.Reader, w io.Writer, runner executor.Runner, store storage.Store, log zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	src, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading fragment: %w", err)
	}

	res := runner.Run(ctx, string(src))

	if store != nil {
		rec := storage.NewExecution(storage.SourceCLI, string(src), res)
		if err := store.SaveExecution(ctx, rec); err != nil {
			log.Error().Err(err).Msg("saving execution")
		} else {
			log.Debug().Str("id", rec.ID).Msg("execution recorded")
		}
	}

	return json.NewEncoder(w).Encode(res)
}
