// Package logbuf provides the log sink shared by both processes: a writer
// that tees every line to stderr and an optional file while retaining the
// most recent lines in memory. The in-memory ring backs the IPC getlogs
// command, which drains it.
package logbuf

import (
	"io"
	"os"
	"strings"
	"sync"
)

// DefaultMaxLines bounds the ring when callers have no better number.
const DefaultMaxLines = 500

// Buffer is an io.Writer intended as the stdlib log output.
type Buffer struct {
	mu     sync.Mutex
	sinks  []io.Writer
	recent []string
	max    int
}

// New creates a buffer retaining up to maxLines recent lines. maxLines <= 0
// disables in-memory capture (the writer still tees).
func New(maxLines int, sinks ...io.Writer) *Buffer {
	if len(sinks) == 0 {
		sinks = []io.Writer{os.Stderr}
	}
	return &Buffer{sinks: sinks, max: maxLines}
}

// OpenFile attaches an append-only log file as an additional sink.
func (b *Buffer) OpenFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, f)
	b.mu.Unlock()
	return nil
}

// Write tees p to every sink and records its lines in the ring.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range b.sinks {
		w.Write(p) // best effort; a dead sink must not break logging
	}

	if b.max > 0 {
		for _, line := range strings.Split(string(p), "\n") {
			if line == "" {
				continue
			}
			b.recent = append(b.recent, line)
		}
		if over := len(b.recent) - b.max; over > 0 {
			b.recent = append(b.recent[:0], b.recent[over:]...)
		}
	}
	return len(p), nil
}

// TakeRecent returns the buffered lines and clears the ring.
func (b *Buffer) TakeRecent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.recent
	b.recent = nil
	return out
}
