package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"jiraharvest/pkg/transform"
)

// JSONLSink appends records to a newline-delimited JSON file. Each record
// is written with a single unbuffered write, so a completed Append is in the
// kernel even if the process dies right after. The file is only ever
// extended.
type JSONLSink struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	fsync    bool
	appended int
}

// OpenJSONL opens path for appending, creating it and its directory if
// needed. If a previous run died mid-line the partial line is terminated so
// the next record starts on its own line. With fsync set, Sync flushes the
// file to stable storage.
func OpenJSONL(path string, fsync bool) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	s := &JSONLSink{file: file, path: path, fsync: fsync}
	if err := s.repairTail(); err != nil {
		file.Close()
		return nil, err
	}
	return s, nil
}

// repairTail terminates a torn last line.
func (s *JSONLSink) repairTail() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat output file: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := s.file.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("failed to read output tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := s.file.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("failed to terminate partial line: %w", err)
	}
	return nil
}

// Append encodes rec as one JSON line. Markup characters in issue text are
// written as-is rather than HTML-escaped.
func (s *JSONLSink) Append(rec transform.Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.IssueKey, err)
	}
	data := buf.Bytes()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return os.ErrClosed
	}
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("failed to append record %s: %w", rec.IssueKey, err)
	}
	s.appended++
	return nil
}

// Sync flushes appended records to stable storage when fsync is enabled.
func (s *JSONLSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return os.ErrClosed
	}
	if !s.fsync {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync output file: %w", err)
	}
	return nil
}

// Close releases the file. Calling Close more than once is safe.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}

// Appended returns the number of records written through this sink.
func (s *JSONLSink) Appended() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appended
}

// Path returns the output file path
func (s *JSONLSink) Path() string {
	return s.path
}

// CountLines returns the number of complete lines in a JSONL file. A missing
// file has zero lines.
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		count += bytes.Count(buf[:n], []byte{'\n'})
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, err
		}
	}
}
