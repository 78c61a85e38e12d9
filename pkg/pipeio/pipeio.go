// Package pipeio copies data between two streams, typically a connection
// and the local terminal.
package pipeio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"

	"github.com/muesli/cancelreader"
)

// Pipe copies in both directions until one side ends, the context is done
// or a copy fails. Both sides are closed before Pipe returns.
//
// Errors that only signal the other direction shutting down are not passed
// to logfunc.
func Pipe(ctx context.Context, rwc1 io.ReadWriteCloser, rwc2 io.ReadWriteCloser, logfunc func(error)) {
	var once sync.Once
	done := make(chan struct{})
	stop := func() {
		once.Do(func() {
			rwc1.Close()
			rwc2.Close()
			close(done)
		})
	}

	copyFn := func(dst io.Writer, src io.Reader, name string) {
		defer stop()
		if _, err := io.Copy(dst, src); err != nil && !ignorable(err) {
			logfunc(fmt.Errorf("io.Copy(%s): %w", name, err))
		}
	}

	go copyFn(rwc1, rwc2, "rwc1, rwc2")
	go copyFn(rwc2, rwc1, "rwc2, rwc1")

	select {
	case <-ctx.Done():
		stop()
	case <-done:
	}
}

func ignorable(err error) bool {
	return errors.Is(err, cancelreader.ErrCanceled) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
