package mcptool

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/michaelbrown/runbox/internal/executor"
	"github.com/michaelbrown/runbox/internal/storage"
	"github.com/michaelbrown/runbox/internal/storage/sqlite"
)

func call(t *testing.T, tool *Tool, args any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = "code_run"
	req.Params.Arguments = args

	res, err := tool.HandleCodeRun(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleCodeRun: %v", err)
	}
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("got %d content items", len(res.Content))
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	return tc.Text
}

func newTool() *Tool {
	return &Tool{
		Runner: executor.New(executor.DefaultPolicy(), zerolog.Nop()),
		Log:    zerolog.Nop(),
	}
}

func TestHandleCodeRun_Success(t *testing.T) {
	res := call(t, newTool(), map[string]any{"code": `fmt.Println("hello")`})

	if res.IsError {
		t.Error("IsError = true for a successful run")
	}
	out := text(t, res)
	if !strings.HasPrefix(out, "hello\n") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "status: success") {
		t.Errorf("output missing status: %q", out)
	}
}

func TestHandleCodeRun_Failure(t *testing.T) {
	res := call(t, newTool(), map[string]any{"code": `fmt.Println("a"); panic("boom")`})

	if !res.IsError {
		t.Error("IsError = false for a failing run")
	}
	out := text(t, res)
	for _, want := range []string{"a\n", "STDERR:\n", "boom", "status: failure"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestHandleCodeRun_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args any
	}{
		{"nil", nil},
		{"missing code", map[string]any{}},
		{"wrong type", map[string]any{"code": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := call(t, newTool(), tt.args)
			if !res.IsError {
				t.Error("expected IsError")
			}
			if !strings.HasPrefix(text(t, res), "error:") {
				t.Errorf("text = %q", text(t, res))
			}
		})
	}
}

func TestHandleCodeRun_Records(t *testing.T) {
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	tool := newTool()
	tool.Store = store
	call(t, tool, map[string]any{"code": `fmt.Print(1)`})

	execs, err := store.ListExecutions(context.Background(), storage.ListOptions{Source: storage.SourceMCP})
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 1 || execs[0].Stdout != "1" {
		t.Errorf("recorded = %+v", execs)
	}
}

func TestFormatResult_Truncates(t *testing.T) {
	res := executor.Result{
		Stdout:        strings.Repeat("x", maxOutput+100),
		ExecutionTime: "0.001s",
		Status:        executor.StatusSuccess,
	}
	out := formatResult(res)

	if !strings.Contains(out, "... (output truncated)") {
		t.Error("missing truncation marker")
	}
	if !strings.HasSuffix(out, "status: success (0.001s)") {
		t.Errorf("status line lost: %q", out[len(out)-40:])
	}
}

func TestNewServer(t *testing.T) {
	s := NewServer(newTool(), "test")
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
}
