// Package queue implements the command drop file: the shared mailbox an
// external controller appends command lines to, and the line filter that
// turns its content into dispatchable commands.
package queue

import "strings"

// CommentPrefix marks a line as a comment. The check applies to the first
// non-whitespace character of the line.
const CommentPrefix = "#"

// Command is a single executable line extracted from the drop file.
type Command struct {
	// Text is the line with surrounding whitespace trimmed. Never empty.
	Text string
	// Line is the 1-based position in the file the command came from.
	Line int
}

// Parse splits raw drop-file content into commands in file order. Blank
// lines and comment lines are dropped; everything else passes through
// untouched beyond whitespace trimming. Parse never fails: malformed
// encoding is carried along as best-effort text.
func Parse(text string) []Command {
	if text == "" {
		return nil
	}

	var commands []Command
	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if trimmed == "" || strings.HasPrefix(trimmed, CommentPrefix) {
			continue
		}
		commands = append(commands, Command{Text: trimmed, Line: i + 1})
	}
	return commands
}
