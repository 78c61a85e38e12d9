package pipeio

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/muesli/cancelreader"
)

func TestNewStdio(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	stdio := NewStdio(strings.NewReader("input"), &out)

	if stdio.stdin == nil {
		t.Error("NewStdio() stdin is nil")
	}
	if stdio.stdout == nil {
		t.Error("NewStdio() stdout is nil")
	}

	buf := make([]byte, 16)
	n, err := stdio.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := string(buf[:n]); got != "input" {
		t.Errorf("Read() = %q, want %q", got, "input")
	}
}

func TestStdio_Read(t *testing.T) {
	t.Parallel()

	testData := []byte("test input")
	stdio := &Stdio{
		stdin:  bytes.NewReader(testData),
		stdout: io.Discard,
	}

	buf := make([]byte, 1024)
	n, err := stdio.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(buf[:n], testData) {
		t.Errorf("Read() = %q, want %q", buf[:n], testData)
	}
}

func TestStdio_ReadWithCancellable(t *testing.T) {
	t.Parallel()

	testData := []byte("test input")
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error = %v", err)
	}
	defer r.Close()
	defer w.Close()

	cr, err := cancelreader.NewReader(r)
	if err != nil {
		t.Skipf("Cannot create cancelreader on this platform: %v", err)
	}

	stdio := &Stdio{
		stdin:            r,
		cancellableStdin: cr,
		stdout:           io.Discard,
	}

	go func() {
		w.Write(testData)
		w.Close()
	}()

	buf := make([]byte, 1024)
	n, err := stdio.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(buf[:n], testData) {
		t.Errorf("Read() = %q, want %q", buf[:n], testData)
	}
}

func TestStdio_Write(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	stdio := NewStdio(strings.NewReader(""), &out)

	testData := []byte("test output")
	n, err := stdio.Write(testData)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len(testData) {
		t.Errorf("Write() wrote %d bytes, want %d", n, len(testData))
	}
	if got := out.String(); got != string(testData) {
		t.Errorf("stdout = %q, want %q", got, testData)
	}
}

func TestStdio_CloseWithCancellable(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error = %v", err)
	}
	defer r.Close()
	defer w.Close()

	cr, err := cancelreader.NewReader(r)
	if err != nil {
		t.Skipf("Cannot create cancelreader on this platform: %v", err)
	}

	stdio := &Stdio{
		stdin:            r,
		cancellableStdin: cr,
		stdout:           io.Discard,
	}

	if err := stdio.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	buf := make([]byte, 10)
	if _, err := stdio.Read(buf); err == nil {
		t.Error("Expected error after Close(), got nil")
	}
}
