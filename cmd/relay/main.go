package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/overlaybridge/relay/internal/daemon"
	"github.com/overlaybridge/relay/internal/history"
	"github.com/overlaybridge/relay/internal/model"
	"github.com/overlaybridge/relay/internal/notify"
	"github.com/overlaybridge/relay/internal/queue"
	"github.com/overlaybridge/relay/internal/setup"
	"github.com/overlaybridge/relay/internal/status"
	"github.com/overlaybridge/relay/internal/uds"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "setup":
		runSetup(os.Args[2:])
	case "daemon":
		runDaemon(os.Args[2:])
	case "send":
		runSend(os.Args[2:])
	case "poll":
		runPoll(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "notify":
		runNotify(os.Args[2:])
	case "version":
		fmt.Printf("relay %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runSetup(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: relay setup <project_dir> [--name <project_name>]")
		os.Exit(1)
	}

	projectDir := args[0]
	var projectName string

	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--name":
			if i+1 >= len(rest) {
				fmt.Fprintln(os.Stderr, "--name requires a value")
				os.Exit(1)
			}
			i++
			projectName = rest[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: relay setup <project_dir> [--name <project_name>]\n", rest[i])
			os.Exit(1)
		}
	}

	if err := setup.Run(projectDir, projectName); err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}
	absDir, _ := filepath.Abs(projectDir)
	fmt.Printf("Initialized .relay/ in %s\n", absDir)
}

func runDaemon(_ []string) {
	relayDir := mustFindRelayDir()

	cfg, err := loadConfig(relayDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	d, err := daemon.New(relayDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create daemon: %v\n", err)
		os.Exit(1)
	}

	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
		os.Exit(1)
	}
}

// runSend appends commands to the drop file. With a running daemon the
// append goes through the control socket; --direct writes the file the
// way an external producer would.
func runSend(args []string) {
	direct := false
	var commands []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--direct":
			direct = true
		default:
			commands = append(commands, args[i])
		}
	}

	if len(commands) == 0 {
		fmt.Fprintln(os.Stderr, "usage: relay send [--direct] <command>...")
		os.Exit(1)
	}

	relayDir := mustFindRelayDir()

	if direct {
		cfg, err := loadConfig(relayDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		queuePath := cfg.Queue.File
		if !filepath.IsAbs(queuePath) {
			queuePath = filepath.Join(relayDir, queuePath)
		}
		store := queue.NewStore(queuePath, 0)
		if err := store.Append(commands...); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("appended %d command(s) to %s\n", len(commands), queuePath)
		return
	}

	client := uds.NewClient(filepath.Join(relayDir, uds.DefaultSocketName))
	resp, err := client.SendCommand("push", map[string]any{"commands": commands})
	if err != nil {
		fmt.Fprintf(os.Stderr, "send: %v\n", err)
		os.Exit(1)
	}
	if !resp.Success {
		printResponseError("send", resp)
		os.Exit(1)
	}

	fmt.Printf("appended %d command(s)\n", len(commands))
}

func runPoll(_ []string) {
	relayDir := mustFindRelayDir()

	client := uds.NewClient(filepath.Join(relayDir, uds.DefaultSocketName))
	resp, err := client.SendCommand("poll", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "poll: %v\n", err)
		os.Exit(1)
	}
	if !resp.Success {
		printResponseError("poll", resp)
		os.Exit(1)
	}

	fmt.Println("poll triggered")
}

func runStatus(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: relay status [--json]\n", a)
			os.Exit(1)
		}
	}

	relayDir := mustFindRelayDir()

	if err := status.Run(relayDir, jsonOutput); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}
}

// runHistory reads execution records straight from the history database,
// so it works whether or not the daemon is up.
func runHistory(args []string) {
	limit := 20
	jsonOutput := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--limit":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--limit requires a value")
				os.Exit(1)
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil || n < 1 {
				fmt.Fprintf(os.Stderr, "invalid --limit value: %s\n", args[i])
				os.Exit(1)
			}
			limit = n
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: relay history [--limit <n>] [--json]\n", args[i])
			os.Exit(1)
		}
	}

	relayDir := mustFindRelayDir()

	cfg, err := loadConfig(relayDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.History.Enabled {
		fmt.Fprintln(os.Stderr, "history: disabled in config.yaml")
		os.Exit(1)
	}

	historyPath := cfg.History.File
	if !filepath.IsAbs(historyPath) {
		historyPath = filepath.Join(relayDir, historyPath)
	}

	ctx := context.Background()
	hs, err := history.Open(ctx, historyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		os.Exit(1)
	}
	defer hs.Close()

	records, err := hs.Recent(ctx, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			fmt.Fprintf(os.Stderr, "history: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(records) == 0 {
		fmt.Println("no execution records")
		return
	}
	for _, r := range records {
		fmt.Printf("%s  %s  line=%d  executed=%t  %s\n",
			r.DispatchedAt.Format("2006-01-02 15:04:05"), r.ID, r.Line, r.Executed, r.Command)
	}
}

func runNotify(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: relay notify <title> <message>")
		os.Exit(1)
	}
	if err := notify.Send(args[0], args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "notify: %v\n", err)
		os.Exit(1)
	}
}

func printResponseError(cmd string, resp *uds.Response) {
	code := ""
	msg := "unknown error"
	if resp.Error != nil {
		code = resp.Error.Code
		msg = resp.Error.Message
	}
	fmt.Fprintf(os.Stderr, "%s failed [%s]: %s\n", cmd, code, msg)
}

// findRelayDir searches for .relay/ in the current directory and ancestors.
func findRelayDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".relay")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func mustFindRelayDir() string {
	relayDir := findRelayDir()
	if relayDir == "" {
		fmt.Fprintln(os.Stderr, "error: .relay/ directory not found. Run 'relay setup <dir>' first.")
		os.Exit(1)
	}
	return relayDir
}

func loadConfig(relayDir string) (model.Config, error) {
	data, err := os.ReadFile(filepath.Join(relayDir, "config.yaml"))
	if err != nil {
		return model.Config{}, fmt.Errorf("read config.yaml: %w", err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse config.yaml: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `relay %s - File-backed command relay

Usage: relay <command> [options]

Project:
  setup <dir> [--name <n>]   Initialize .relay/ directory
  status [--json]            Show daemon and queue status

Queue:
  send [--direct] <cmd>...   Append command(s) to the drop file
  poll                       Trigger an immediate drain cycle
  history [--limit <n>]      Show recent execution records

Internal:
  daemon                     Run the relay daemon

Utilities:
  notify <title> <msg>       Desktop notification
  version                    Show version
  help                       Show this help

`, version)
}
