package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExportMarkdown renders an execution as a markdown document.
func ExportMarkdown(e *Execution) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Execution %s\n\n", e.ID))
	b.WriteString(fmt.Sprintf("- **Source:** %s\n", e.Source))
	b.WriteString(fmt.Sprintf("- **Status:** %s\n", e.Status))
	if e.FaultKind != "" {
		b.WriteString(fmt.Sprintf("- **Fault:** %s\n", e.FaultKind))
	}
	b.WriteString(fmt.Sprintf("- **Execution time:** %s\n", e.ExecutionTime))
	b.WriteString(fmt.Sprintf("- **Created:** %s\n", e.CreatedAt.Format("2006-01-02 15:04:05")))
	b.WriteString("\n---\n\n")

	b.WriteString(fmt.Sprintf("## Code\n\n```go\n%s\n```\n\n", strings.TrimRight(e.Code, "\n")))
	if e.Stdout != "" {
		b.WriteString(fmt.Sprintf("## Stdout\n\n```\n%s\n```\n\n", strings.TrimRight(e.Stdout, "\n")))
	}
	if e.Stderr != "" {
		b.WriteString(fmt.Sprintf("## Stderr\n\n```\n%s\n```\n\n", strings.TrimRight(e.Stderr, "\n")))
	}

	return b.String()
}

// ExportJSON renders an execution as formatted JSON.
func ExportJSON(e *Execution) ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// ExportYAML renders an execution as YAML.
func ExportYAML(e *Execution) ([]byte, error) {
	return yaml.Marshal(e)
}
