package executor

import (
	"bytes"
	"io"
	"os"
	"sync"
	"time"
)

// sink is an in-memory capture target for one stream of one run. It is safe
// for concurrent writes because a timed-out fragment may still be writing from
// the interpreter goroutine after Run has returned.
type sink struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	sealed    bool
	truncated bool
}

func newSink(limit int) *sink {
	return &sink{limit: limit}
}

// Write keeps up to limit bytes and reports everything as consumed so that
// callers like fmt.Fprint never see a short write.
func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return len(p), nil
	}
	if s.limit <= 0 {
		return s.buf.Write(p)
	}

	remaining := s.limit - s.buf.Len()
	if remaining <= 0 {
		s.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		s.buf.Write(p[:remaining])
		s.truncated = true
		return len(p), nil
	}
	return s.buf.Write(p)
}

// seal closes the capture window. Later writes are dropped.
func (s *sink) seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// appendLine writes msg and a trailing newline, ignoring the seal and the limit.
func (s *sink) appendLine(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.WriteString(msg)
	s.buf.WriteByte('\n')
}

func (s *sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *sink) Truncated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.truncated
}

// drainDelay bounds how long a closed pipe keeps being drained when
// something outside the run still holds its write end.
const drainDelay = time.Second

// pipeTo returns the write end of a pipe whose read end is copied into dst.
// wait closes the write end and blocks until everything written has reached
// dst.
func pipeTo(dst io.Writer) (w *os.File, wait func(), err error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		io.Copy(dst, r)
	}()

	wait = func() {
		w.Close()
		select {
		case <-done:
		case <-time.After(drainDelay):
			r.SetReadDeadline(time.Now())
			<-done
		}
		r.Close()
	}
	return w, wait, nil
}
