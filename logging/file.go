// Package logging holds the file-backed debug tracing used while bringing up
// or troubleshooting a PLC link: timestamped line logging and hex dumps of
// every frame on the wire, filterable by protocol layer.
package logging

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// FileLogger appends timestamped lines to a file. Safe for concurrent use.
type FileLogger struct {
	mu     sync.Mutex
	file   *os.File
	prefix string
	closed bool
}

// NewFileLogger opens (or creates) the file at path for appending. prefix, if
// non-empty, is inserted between the timestamp and the message of every line;
// sessions typically pass their correlation ID here.
func NewFileLogger(path, prefix string) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &FileLogger{file: file, prefix: prefix}, nil
}

// Log writes one formatted line. Calls after Close are dropped.
func (l *FileLogger) Log(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	if l.prefix != "" {
		fmt.Fprintf(l.file, "%s [%s] %s\n", ts, l.prefix, fmt.Sprintf(format, args...))
		return
	}
	fmt.Fprintf(l.file, "%s %s\n", ts, fmt.Sprintf(format, args...))
}

// Close closes the underlying file. Closing twice is harmless.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}
