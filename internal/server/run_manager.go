package server

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned by Begin when the in-flight limit is reached.
var ErrBusy = errors.New("too many executions in flight")

// RunManager tracks executions that are currently running so they can be
// bounded and cancelled on shutdown.
type RunManager struct {
	mu    sync.Mutex
	runs  map[string]context.CancelFunc
	limit int // zero means unlimited
}

// NewRunManager creates a RunManager that admits at most limit concurrent runs.
func NewRunManager(limit int) *RunManager {
	return &RunManager{
		runs:  make(map[string]context.CancelFunc),
		limit: limit,
	}
}

// Begin registers a run under id and returns its context and a release func
// that must be called when the run finishes.
func (m *RunManager) Begin(ctx context.Context, id string) (context.Context, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.limit > 0 && len(m.runs) >= m.limit {
		return nil, nil, ErrBusy
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.runs[id] = cancel

	release := func() {
		cancel()
		m.mu.Lock()
		delete(m.runs, id)
		m.mu.Unlock()
	}
	return runCtx, release, nil
}

// Cancel stops the run registered under id. It reports whether one was found.
func (m *RunManager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, ok := m.runs[id]
	if ok {
		cancel()
	}
	return ok
}

// Active returns the number of runs in flight.
func (m *RunManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// CloseAll cancels every run in flight.
func (m *RunManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.runs {
		cancel()
		delete(m.runs, id)
	}
}
