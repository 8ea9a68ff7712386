package queue

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store is the drop file itself. The external producer appends to it; the
// monitor reads and empties it. No lock coordinates the two sides: in
// truncate mode a producer write landing between Snapshot and Clear is
// lost, which is the documented behavior of the interface. Rename mode
// closes that window at the cost of a spool directory.
type Store struct {
	path     string
	maxBytes int64
}

// NewStore creates a Store for the drop file at path. maxBytes bounds a
// single snapshot read; 0 means unlimited.
func NewStore(path string, maxBytes int64) *Store {
	return &Store{path: path, maxBytes: maxBytes}
}

// Path returns the drop file path.
func (s *Store) Path() string {
	return s.path
}

// HasWork reports whether the drop file exists and is non-empty. It is a
// single stat call so it can run on every tick.
func (s *Store) HasWork() bool {
	info, err := os.Stat(s.path)
	if err != nil {
		return false
	}
	return info.Size() > 0
}

// Snapshot reads the full drop file content at one point in time. A missing
// or unreadable file yields empty content and no error: the monitor treats
// every access failure as "nothing to do this cycle".
func (s *Store) Snapshot() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read drop file: %w", err)
	}
	return s.clip(data), nil
}

// Clear truncates the drop file to zero bytes. A missing file counts as
// already clear.
func (s *Store) Clear() error {
	err := os.Truncate(s.path, 0)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("truncate drop file: %w", err)
	}
	return nil
}

// DrainRename moves the drop file aside into spoolDir and returns the
// spooled content. Producer appends racing the drain land in a fresh drop
// file and survive to the next cycle. The spool file is removed once read.
func (s *Store) DrainRename(spoolDir string) (string, error) {
	if err := os.MkdirAll(spoolDir, 0755); err != nil {
		return "", fmt.Errorf("create spool dir: %w", err)
	}

	spoolPath := filepath.Join(spoolDir, fmt.Sprintf("drain-%d-%d.txt", time.Now().UnixNano(), os.Getpid()))
	if err := os.Rename(s.path, spoolPath); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("rename drop file: %w", err)
	}

	data, err := os.ReadFile(spoolPath)
	if err != nil {
		return "", fmt.Errorf("read spooled drop file: %w", err)
	}
	_ = os.Remove(spoolPath)

	return s.clip(data), nil
}

// Append adds command lines to the drop file, the producer-side write. Each
// line gets a trailing newline. The parent directory must already exist.
func (s *Store) Append(lines ...string) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open drop file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, line := range lines {
		if _, err := fmt.Fprintln(f, line); err != nil {
			return fmt.Errorf("append to drop file: %w", err)
		}
	}
	return nil
}

// clip enforces the snapshot byte bound, cutting at the last full line
// under the limit. The clipped tail shares the fate of all unread content:
// it is gone after the terminal clear.
func (s *Store) clip(data []byte) string {
	if s.maxBytes <= 0 || int64(len(data)) <= s.maxBytes {
		return string(data)
	}
	bounded := data[:s.maxBytes]
	if i := bytes.LastIndexByte(bounded, '\n'); i >= 0 {
		return string(bounded[:i+1])
	}
	return ""
}
