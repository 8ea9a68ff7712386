// Package model defines the data structures for relay's configuration and
// execution records.
package model

type Config struct {
	Project ProjectConfig `yaml:"project"`
	Relay   RelayConfig   `yaml:"relay"`
	Queue   QueueConfig   `yaml:"queue"`
	Poll    PollConfig    `yaml:"poll"`
	Console ConsoleConfig `yaml:"console"`
	Limits  LimitsConfig  `yaml:"limits"`
	History HistoryConfig `yaml:"history"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Logging LoggingConfig `yaml:"logging"`
	Notify  NotifyConfig  `yaml:"notify"`
}

type ProjectConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type RelayConfig struct {
	Version     string `yaml:"version"`
	Created     string `yaml:"created"`
	ProjectRoot string `yaml:"project_root"`
}

// DrainMode selects how a drained store is emptied.
type DrainMode string

const (
	// DrainTruncate reads the file in place and truncates it afterwards.
	// A producer write landing between the read and the truncate is lost.
	DrainTruncate DrainMode = "truncate"
	// DrainRename moves the file aside before parsing, so concurrent
	// producer appends land in a fresh file and survive to the next cycle.
	DrainRename DrainMode = "rename"
)

type QueueConfig struct {
	// File is the drop file path. Relative paths resolve against the
	// .relay/ directory.
	File  string    `yaml:"file"`
	Drain DrainMode `yaml:"drain"`
}

// PollMode selects the drain trigger.
type PollMode string

const (
	PollModeTicker PollMode = "poll"
	PollModeWatch  PollMode = "watch"
)

type PollConfig struct {
	Mode        PollMode `yaml:"mode"`
	IntervalSec int      `yaml:"interval_sec"`
	DebounceSec float64  `yaml:"debounce_sec"`
}

// ConsoleKind selects the console capability backing Execute.
type ConsoleKind string

const (
	// ConsoleExec interprets each command with the configured shell.
	ConsoleExec ConsoleKind = "exec"
	// ConsoleTranscript records commands in the transcript without running
	// anything. Useful when the real host interpreter is not attached.
	ConsoleTranscript ConsoleKind = "transcript"
	// ConsoleNull discards everything.
	ConsoleNull ConsoleKind = "null"
)

type ConsoleConfig struct {
	Kind           ConsoleKind `yaml:"kind"`
	TranscriptFile string      `yaml:"transcript_file"`
	Shell          string      `yaml:"shell"`
}

type LimitsConfig struct {
	// MaxQueueFileBytes bounds a single snapshot read. 0 disables the
	// bound. Content beyond the last full line under the limit is dropped
	// with the terminal clear.
	MaxQueueFileBytes int64 `yaml:"max_queue_file_bytes"`
	MaxJournalBytes   int64 `yaml:"max_journal_bytes"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
}

type DaemonConfig struct {
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ApplyDefaults fills zero values with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Queue.File == "" {
		c.Queue.File = "commands.txt"
	}
	if c.Queue.Drain == "" {
		c.Queue.Drain = DrainTruncate
	}
	if c.Poll.Mode == "" {
		c.Poll.Mode = PollModeTicker
	}
	if c.Poll.IntervalSec <= 0 {
		c.Poll.IntervalSec = 2
	}
	if c.Poll.DebounceSec <= 0 {
		c.Poll.DebounceSec = 0.5
	}
	if c.Console.Kind == "" {
		c.Console.Kind = ConsoleTranscript
	}
	if c.Console.TranscriptFile == "" {
		c.Console.TranscriptFile = "transcript.log"
	}
	if c.Console.Shell == "" {
		c.Console.Shell = "/bin/sh"
	}
	if c.History.File == "" {
		c.History.File = "history.db"
	}
	if c.Daemon.ShutdownTimeoutSec <= 0 {
		c.Daemon.ShutdownTimeoutSec = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
