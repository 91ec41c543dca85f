package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/runbox/internal/config"
	"github.com/michaelbrown/runbox/internal/executor"
	"github.com/michaelbrown/runbox/internal/logger"
	"github.com/michaelbrown/runbox/internal/storage"
	"github.com/michaelbrown/runbox/internal/storage/sqlite"
)

const version = "0.1.0"

var (
	configFlag   string
	profileFlag  string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "runbox",
	Short: "Runbox - run Go code fragments and capture their output",
	Long: `Runbox runs Go source fragments in an embedded interpreter and reports
stdout, stderr, execution time and a success/failure status.

Fragments can be submitted from the command line, an interactive REPL,
an HTTP/WebSocket API, or as an MCP tool.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: ./runbox.yaml or ~/.runbox/runbox.yaml)")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "Executor profile to apply (e.g. strict, long)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
}

func main() {
	if executor.IsChild() {
		os.Exit(executor.ServeChild())
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds what every command needs once config has been loaded.
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	exec  *executor.Executor
	store storage.Store // nil when history is disabled
}

// setup loads config, builds the logger and executor, and opens the history
// store when it is enabled.
func setup() (*app, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	log := logger.New(cfg.Log, os.Stderr)

	policy, err := cfg.PolicyFor(profileFlag)
	if err != nil {
		return nil, err
	}

	exe := executor.New(policy, log)
	if cfg.Executor.Subprocess {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating runbox binary: %w", err)
		}
		exe = exe.WithChildProcess(self)
	}

	a := &app{
		cfg:  cfg,
		log:  log,
		exec: exe,
	}

	if cfg.Storage.Enabled {
		store, err := sqlite.Open(cfg.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		a.store = store
	}
	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

// openStore is used by the history commands, which need storage even when
// recording is switched off.
func openStore() (storage.Store, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return sqlite.Open(cfg.Storage.DBPath)
}
