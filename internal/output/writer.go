// Package output persists normalized records as newline-delimited JSON and
// converts existing output files.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/org-harvester/internal/harvest"
)

// Options controls how the output file is opened.
type Options struct {
	// Fsync forces each record to stable storage before Write returns.
	Fsync bool
	// Truncate discards existing content instead of appending to it.
	Truncate bool
}

// JSONLWriter implements harvest.Sink. Every Write appends exactly one line
// in a single write call; prior lines are never touched.
type JSONLWriter struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	opts   Options
	count  int
	closed bool
}

// Open opens path for appending, creating it and its directory if needed.
// With Options.Truncate the file starts empty.
func Open(path string, opts Options) (*JSONLWriter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("output path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if opts.Truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	return &JSONLWriter{file: f, path: path, opts: opts}, nil
}

// Write appends record as one JSON line.
func (w *JSONLWriter) Write(record harvest.NormalizedRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("write %s: %w", w.path, os.ErrClosed)
	}
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	if w.opts.Fsync {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("sync %s: %w", w.path, err)
		}
	}
	w.count++
	return nil
}

// Count returns the number of records written through this writer.
func (w *JSONLWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Path returns the output location.
func (w *JSONLWriter) Path() string {
	return w.path
}

// Close flushes and closes the file. It is safe to call more than once.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("sync %s: %w", w.path, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", w.path, err)
	}
	return nil
}
