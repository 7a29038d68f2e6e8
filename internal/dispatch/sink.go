package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink is an append-only newline-delimited JSON file.
// No rotation and no size bound.
type Sink struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// OpenSink opens (or creates) path for appending, creating parent dirs.
func OpenSink(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("events log: create directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("events log: open file: %w", err)
	}
	return &Sink{path: path, file: file}, nil
}

// Path returns the file the sink appends to.
func (s *Sink) Path() string {
	return s.path
}

// Append writes line followed by a newline as one write.
func (s *Sink) Append(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := s.file.Write(buf); err != nil {
		return fmt.Errorf("events log: write: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
