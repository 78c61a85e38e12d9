package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Stdio replaces stdin and stdout. Input is written with WriteToStdin and
// everything the program prints is collected for WaitForOutput.
type Stdio struct {
	stdinReader *io.PipeReader
	stdinWriter *io.PipeWriter

	mu      sync.Mutex
	out     bytes.Buffer
	changed chan struct{}
}

// NewStdio creates a Stdio with empty input and output.
func NewStdio() *Stdio {
	r, w := io.Pipe()
	return &Stdio{
		stdinReader: r,
		stdinWriter: w,
		changed:     make(chan struct{}),
	}
}

// WriteToStdin blocks until the program has read data.
func (m *Stdio) WriteToStdin(data []byte) (int, error) {
	return m.stdinWriter.Write(data)
}

// CloseStdin makes the program read io.EOF.
func (m *Stdio) CloseStdin() error {
	return m.stdinWriter.Close()
}

// Output returns everything written to stdout so far.
func (m *Stdio) Output() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out.String()
}

// Stdin fits config.Dependencies.Stdin.
func (m *Stdio) Stdin() io.Reader {
	return m.stdinReader
}

// Stdout fits config.Dependencies.Stdout.
func (m *Stdio) Stdout() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.out.Write(p)
		close(m.changed)
		m.changed = make(chan struct{})
		return len(p), nil
	})
}

// WaitForOutput blocks until stdout contains expected or ctx ends.
func (m *Stdio) WaitForOutput(ctx context.Context, expected string) error {
	for {
		m.mu.Lock()
		out := m.out.String()
		changed := m.changed
		m.mu.Unlock()

		if strings.Contains(out, expected) {
			return nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("waiting for output %q, got %q: %w", expected, out, ctx.Err())
		}
	}
}

// Close releases a program blocked on stdin.
func (m *Stdio) Close() error {
	return m.stdinWriter.Close()
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) {
	return f(p)
}
