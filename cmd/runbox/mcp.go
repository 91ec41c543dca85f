package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/runbox/internal/mcptool"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the code_run tool over MCP stdio",
	Long: `Run an MCP server on stdin/stdout exposing a single code_run tool.

Example MCP client configuration:
  {"command": "runbox", "args": ["mcp"]}`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	s := mcptool.NewServer(&mcptool.Tool{
		Runner: a.exec,
		Store:  a.store,
		Log:    a.log,
	}, version)

	a.log.Debug().Msg("mcp server listening on stdio")
	return server.ServeStdio(s)
}
