package log

import (
	"fmt"
	"io"
	"os"
)

// loggedStream wraps a stream and logs all data read from and written to it.
type loggedStream struct {
	rwc     io.ReadWriteCloser
	logFile *os.File
}

func (ls *loggedStream) Read(b []byte) (int, error) {
	n, err := ls.rwc.Read(b)
	if n > 0 {
		if _, lerr := ls.logFile.Write(b[:n]); lerr != nil {
			return n, fmt.Errorf("logging read: %w", lerr)
		}
	}
	return n, err
}

func (ls *loggedStream) Write(b []byte) (int, error) {
	n, err := ls.rwc.Write(b)
	if n > 0 {
		if _, lerr := ls.logFile.Write(b[:n]); lerr != nil {
			return n, fmt.Errorf("logging write: %w", lerr)
		}
	}
	return n, err
}

// Close closes the stream first and the log file second.
func (ls *loggedStream) Close() error {
	err := ls.rwc.Close()
	if ferr := ls.logFile.Close(); err == nil {
		err = ferr
	}
	return err
}

// NewLoggedStream wraps a stream to log all data read from and written to it.
// The log file is created or appended to at the specified path.
func NewLoggedStream(rwc io.ReadWriteCloser, logFilePath string) (io.ReadWriteCloser, error) {
	logFile, err := os.OpenFile(logFilePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &loggedStream{rwc: rwc, logFile: logFile}, nil
}
