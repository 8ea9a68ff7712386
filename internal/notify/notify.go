// Package notify provides best-effort desktop notifications for daemon
// lifecycle events.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Send delivers a desktop notification. On macOS it shells out to
// osascript, on Linux to notify-send; elsewhere it reports the platform
// as unsupported. Callers treat any error as non-fatal.
func Send(title, message string) error {
	switch runtime.GOOS {
	case "darwin":
		return sendOSAScript(title, message)
	case "linux":
		return sendNotifySend(title, message)
	default:
		return fmt.Errorf("desktop notifications unsupported on %s", runtime.GOOS)
	}
}

func sendOSAScript(title, message string) error {
	script := fmt.Sprintf(
		`display notification %q with title %q sound name "default"`,
		escapeAppleScript(message), escapeAppleScript(title),
	)

	cmd := exec.Command("osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func sendNotifySend(title, message string) error {
	cmd := exec.Command("notify-send", title, message)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("notify-send: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
