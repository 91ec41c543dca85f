package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/michaelbrown/runbox/internal/executor"
	"github.com/michaelbrown/runbox/internal/storage"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening memory db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func save(t *testing.T, s *SQLiteStore, e *storage.Execution) {
	t.Helper()
	if e.Status == "" {
		e.Status = executor.StatusSuccess
	}
	if err := s.SaveExecution(context.Background(), e); err != nil {
		t.Fatalf("SaveExecution(%s): %v", e.ID, err)
	}
}

func TestSaveAndGetExecution(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	res := executor.Result{
		Stdout:        "a\n",
		Stderr:        "boom\n",
		ExecutionTime: "0.002s",
		Status:        executor.StatusFailure,
		Duration:      2 * time.Millisecond,
		Fault:         &executor.Fault{Kind: executor.FaultPanic, Message: "boom"},
	}
	e := storage.NewExecution(storage.SourceHTTP, `fmt.Println("a"); panic("boom")`, res)
	save(t, s, e)

	got, err := s.GetExecution(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}

	if got.Stdout != "a\n" || got.Stderr != "boom\n" {
		t.Errorf("streams = %q / %q", got.Stdout, got.Stderr)
	}
	if got.Status != executor.StatusFailure {
		t.Errorf("status = %q, want failure", got.Status)
	}
	if got.FaultKind != string(executor.FaultPanic) {
		t.Errorf("fault_kind = %q, want panic", got.FaultKind)
	}
	if got.Source != storage.SourceHTTP {
		t.Errorf("source = %q, want http", got.Source)
	}
	if got.DurationMS != 2 {
		t.Errorf("duration_ms = %d, want 2", got.DurationMS)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should not be zero")
	}
	if r := got.Result(); r.ExecutionTime != "0.002s" || r.Status != executor.StatusFailure {
		t.Errorf("Result() = %+v", r)
	}
}

func TestGetExecutionByPrefix(t *testing.T) {
	s := testStore(t)
	save(t, s, &storage.Execution{ID: "abc12345-0000-0000-0000-000000000000"})

	got, err := s.GetExecution(context.Background(), "abc12345")
	if err != nil {
		t.Fatalf("GetExecution by prefix: %v", err)
	}
	if got.ID != "abc12345-0000-0000-0000-000000000000" {
		t.Errorf("got ID %q", got.ID)
	}
}

func TestGetExecutionAmbiguousPrefix(t *testing.T) {
	s := testStore(t)
	save(t, s, &storage.Execution{ID: "abc00000"})
	save(t, s, &storage.Execution{ID: "abc11111"})

	_, err := s.GetExecution(context.Background(), "abc")
	if err == nil {
		t.Fatal("expected error for ambiguous prefix")
	}
	if errors.Is(err, storage.ErrNotFound) {
		t.Error("ambiguous prefix should not be reported as not found")
	}
}

func TestGetExecutionPrefixIsLiteral(t *testing.T) {
	s := testStore(t)
	save(t, s, &storage.Execution{ID: "abc00000"})
	ctx := context.Background()

	for _, prefix := range []string{"%", "_", "a_c", "a%", ""} {
		if _, err := s.GetExecution(ctx, prefix); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetExecution(%q) error = %v, want ErrNotFound", prefix, err)
		}
	}

	if err := s.DeleteExecution(ctx, "%"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("DeleteExecution(%%) error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetExecution(ctx, "abc00000"); err != nil {
		t.Errorf("execution gone after wildcard delete: %v", err)
	}
}

func TestGetExecutionNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetExecution(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListExecutions(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	save(t, s, &storage.Execution{ID: "old", CreatedAt: base})
	save(t, s, &storage.Execution{ID: "mid", CreatedAt: base.Add(time.Millisecond)})
	save(t, s, &storage.Execution{ID: "new", CreatedAt: base.Add(time.Second)})

	got, err := s.ListExecutions(context.Background(), storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d executions, want 3", len(got))
	}
	for i, want := range []string{"new", "mid", "old"} {
		if got[i].ID != want {
			t.Errorf("got[%d] = %q, want %q", i, got[i].ID, want)
		}
	}
}

func TestListExecutionsFilters(t *testing.T) {
	s := testStore(t)

	save(t, s, &storage.Execution{ID: "a1", Status: executor.StatusSuccess, Source: storage.SourceCLI})
	save(t, s, &storage.Execution{ID: "a2", Status: executor.StatusFailure, Source: storage.SourceHTTP})
	save(t, s, &storage.Execution{ID: "a3", Status: executor.StatusFailure, Source: storage.SourceCLI})

	failed, err := s.ListExecutions(context.Background(), storage.ListOptions{Status: executor.StatusFailure})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(failed) != 2 {
		t.Errorf("got %d failed executions, want 2", len(failed))
	}

	cliFailed, err := s.ListExecutions(context.Background(), storage.ListOptions{
		Status: executor.StatusFailure,
		Source: storage.SourceCLI,
	})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(cliFailed) != 1 || cliFailed[0].ID != "a3" {
		t.Errorf("got %+v, want only a3", cliFailed)
	}
}

func TestListExecutionsLimitOffset(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		save(t, s, &storage.Execution{
			ID:        string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	got, err := s.ListExecutions(context.Background(), storage.ListOptions{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d executions, want 2", len(got))
	}
	if got[0].ID != "d" || got[1].ID != "c" {
		t.Errorf("got %q, %q; want d, c", got[0].ID, got[1].ID)
	}
}

func TestDeleteExecution(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	save(t, s, &storage.Execution{ID: "del1"})

	if err := s.DeleteExecution(ctx, "del1"); err != nil {
		t.Fatalf("DeleteExecution: %v", err)
	}
	if _, err := s.GetExecution(ctx, "del1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after delete", err)
	}
	if err := s.DeleteExecution(ctx, "del1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestPruneExecutions(t *testing.T) {
	s := testStore(t)
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	save(t, s, &storage.Execution{ID: "p1", CreatedAt: cutoff.Add(-48 * time.Hour)})
	save(t, s, &storage.Execution{ID: "p2", CreatedAt: cutoff.Add(-time.Nanosecond)})
	save(t, s, &storage.Execution{ID: "p3", CreatedAt: cutoff.Add(time.Hour)})

	n, err := s.PruneExecutions(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("PruneExecutions: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}

	left, err := s.ListExecutions(context.Background(), storage.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].ID != "p3" {
		t.Errorf("remaining = %+v, want only p3", left)
	}
}

func TestOpenFileAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runbox.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	save(t, s, &storage.Execution{ID: "persist"})
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if _, err := s2.GetExecution(context.Background(), "persist"); err != nil {
		t.Fatalf("GetExecution after reopen: %v", err)
	}
}
