package console

import (
	"fmt"
	"os"
	"sync"
)

// TranscriptConsole records echoed and executed commands in an append-only
// transcript file without interpreting anything. It stands in for a host
// that is loaded but not wired to an interpreter.
type TranscriptConsole struct {
	mu   sync.Mutex
	file *os.File
}

// OpenTranscript opens or creates the transcript file for appending.
func OpenTranscript(path string) (*TranscriptConsole, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	return &TranscriptConsole{file: f}, nil
}

func (c *TranscriptConsole) Echo(text string) error {
	return c.write("> " + text)
}

// Execute records the command as run without running it.
func (c *TranscriptConsole) Execute(text string) error {
	return c.write(text)
}

func (c *TranscriptConsole) write(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.file, line); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func (c *TranscriptConsole) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}
