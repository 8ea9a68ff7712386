package console

import (
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// ExecConsole interprets commands with a shell, the closest standalone
// analogue of a host command interpreter. Echo goes to the transcript
// writer; Execute runs `shell -c text` and lets the shell define success.
type ExecConsole struct {
	shell      string
	transcript io.Writer
}

// NewExecConsole creates an ExecConsole. transcript may be nil, in which
// case Echo is a no-op.
func NewExecConsole(shell string, transcript io.Writer) *ExecConsole {
	if shell == "" {
		shell = "/bin/sh"
	}
	return &ExecConsole{shell: shell, transcript: transcript}
}

func (c *ExecConsole) Echo(text string) error {
	if c.transcript == nil {
		return nil
	}
	if _, err := fmt.Fprintln(c.transcript, "> "+text); err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	return nil
}

func (c *ExecConsole) Execute(text string) error {
	cmd := exec.Command(c.shell, "-c", text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s -c: %w: %s", c.shell, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (c *ExecConsole) Close() error {
	return nil
}
