package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/runbox/internal/executor"
	"github.com/michaelbrown/runbox/internal/storage"
)

var (
	statusFilter  string
	sourceFilter  string
	limitFlag     int
	exportFormat  string
	exportOutput  string
	forceFlag     bool
	olderThanFlag time.Duration
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"h"},
	Short:   "Manage recorded executions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded executions",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show an execution's code and output",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <execution-id>",
	Short: "Delete an execution",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var historyExportCmd = &cobra.Command{
	Use:   "export <execution-id>",
	Short: "Export an execution as markdown, JSON or YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryExport,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete executions older than a given age",
	RunE:  runHistoryPrune,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyExportCmd, historyPruneCmd)

	historyListCmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (success, failure)")
	historyListCmd.Flags().StringVar(&sourceFilter, "source", "", "Filter by source (cli, http, ws, mcp, repl)")
	historyListCmd.Flags().IntVar(&limitFlag, "limit", 20, "Max executions to show")

	historyExportCmd.Flags().StringVar(&exportFormat, "format", "md", "Export format: md, json or yaml")
	historyExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")

	historyDeleteCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")

	historyPruneCmd.Flags().DurationVar(&olderThanFlag, "older-than", 30*24*time.Hour, "Delete executions older than this")
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	execs, err := store.ListExecutions(context.Background(), storage.ListOptions{
		Status: executor.Status(statusFilter),
		Source: storage.Source(sourceFilter),
		Limit:  limitFlag,
	})
	if err != nil {
		return err
	}

	printExecutions(cmd.OutOrStdout(), execs, time.Now())
	return nil
}

func printExecutions(w io.Writer, execs []storage.Execution, now time.Time) {
	if len(execs) == 0 {
		fmt.Fprintln(w, "No executions found.")
		return
	}

	fmt.Fprintf(w, "%-10s %-8s %-6s %-9s %-40s %s\n", "ID", "STATUS", "SOURCE", "TIME", "CODE", "CREATED")
	fmt.Fprintln(w, strings.Repeat("─", 90))

	for _, e := range execs {
		code := firstLine(e.Code)
		if len(code) > 38 {
			code = code[:38] + ".."
		}
		if code == "" {
			code = "(empty)"
		}

		fmt.Fprintf(w, "%-10s %-8s %-6s %-9s %-40s %s\n",
			shortID(e.ID), e.Status, e.Source, e.ExecutionTime, code, timeAgo(now.Sub(e.CreatedAt)))
	}
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	e, err := store.GetExecution(context.Background(), args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Execution: %s\n", e.ID)
	fmt.Fprintf(w, "Status:    %s\n", e.Status)
	if e.FaultKind != "" {
		fmt.Fprintf(w, "Fault:     %s\n", e.FaultKind)
	}
	fmt.Fprintf(w, "Source:    %s\n", e.Source)
	fmt.Fprintf(w, "Time:      %s\n", e.ExecutionTime)
	fmt.Fprintf(w, "Created:   %s\n", e.CreatedAt.Format(time.RFC3339))

	fmt.Fprintln(w, strings.Repeat("─", 60))
	fmt.Fprintln(w, strings.TrimRight(e.Code, "\n"))
	if e.Stdout != "" {
		fmt.Fprintln(w, strings.Repeat("─", 60))
		fmt.Fprint(w, e.Stdout)
	}
	if e.Stderr != "" {
		fmt.Fprintln(w, strings.Repeat("─", 60))
		fmt.Fprintf(w, "\033[31m%s\033[0m", e.Stderr)
	}
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	e, err := store.GetExecution(ctx, args[0])
	if err != nil {
		return err
	}

	if !forceFlag {
		fmt.Printf("Delete execution %s - %q? [y/N] ", shortID(e.ID), firstLine(e.Code))
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := store.DeleteExecution(ctx, e.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted execution %s\n", shortID(e.ID))
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	e, err := store.GetExecution(context.Background(), args[0])
	if err != nil {
		return err
	}

	data, err := exportExecution(e, exportFormat)
	if err != nil {
		return err
	}

	if exportOutput != "" {
		return os.WriteFile(exportOutput, data, 0o644)
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func exportExecution(e *storage.Execution, format string) ([]byte, error) {
	switch format {
	case "json":
		return storage.ExportJSON(e)
	case "yaml", "yml":
		return storage.ExportYAML(e)
	case "md", "markdown":
		return []byte(storage.ExportMarkdown(e)), nil
	default:
		return nil, fmt.Errorf("unknown export format %q (want md, json or yaml)", format)
	}
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	if olderThanFlag <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.PruneExecutions(context.Background(), time.Now().Add(-olderThanFlag))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d execution(s)\n", n)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func timeAgo(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
