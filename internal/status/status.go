// Package status reports relay daemon liveness and queue state.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/overlaybridge/relay/internal/events"
	"github.com/overlaybridge/relay/internal/model"
	"github.com/overlaybridge/relay/internal/queue"
	"github.com/overlaybridge/relay/internal/uds"
)

type Report struct {
	Daemon  DaemonStatus `json:"daemon"`
	Queue   QueueStatus  `json:"queue"`
	Records RecordCounts `json:"records"`
}

type DaemonStatus struct {
	Running bool `json:"running"`
	Pid     int  `json:"pid,omitempty"`
}

type QueueStatus struct {
	File    string `json:"file"`
	Bytes   int64  `json:"bytes"`
	Pending int    `json:"pending"`
}

type RecordCounts struct {
	Journal int `json:"journal"`
}

// Run gathers the report and prints it.
func Run(relayDir string, jsonOutput bool) error {
	report, err := Gather(relayDir)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printReport(report)
	return nil
}

// Gather builds the status report. Daemon liveness comes from a UDS ping;
// queue depth and record counts are read from the filesystem so they work
// whether or not the daemon is up.
func Gather(relayDir string) (Report, error) {
	var report Report

	report.Daemon = checkDaemon(filepath.Join(relayDir, uds.DefaultSocketName))

	cfg, err := loadConfig(relayDir)
	if err != nil {
		return report, err
	}

	queuePath := cfg.Queue.File
	if !filepath.IsAbs(queuePath) {
		queuePath = filepath.Join(relayDir, queuePath)
	}
	report.Queue = inspectQueue(queuePath)

	n, err := events.CountEntries(filepath.Join(relayDir, "logs", "records.jsonl"))
	if err == nil {
		report.Records.Journal = n
	}

	return report, nil
}

func checkDaemon(sockPath string) DaemonStatus {
	client := uds.NewClient(sockPath)
	resp, err := client.SendCommand("ping", nil)
	if err != nil || !resp.Success {
		return DaemonStatus{Running: false}
	}

	var data struct {
		Pid int `json:"pid"`
	}
	if len(resp.Data) > 0 {
		_ = json.Unmarshal(resp.Data, &data)
	}
	return DaemonStatus{Running: true, Pid: data.Pid}
}

func inspectQueue(path string) QueueStatus {
	qs := QueueStatus{File: path}

	info, err := os.Stat(path)
	if err != nil {
		return qs
	}
	qs.Bytes = info.Size()

	data, err := os.ReadFile(path)
	if err != nil {
		return qs
	}
	qs.Pending = len(queue.Parse(string(data)))
	return qs
}

func loadConfig(relayDir string) (model.Config, error) {
	data, err := os.ReadFile(filepath.Join(relayDir, "config.yaml"))
	if err != nil {
		return model.Config{}, fmt.Errorf("read config.yaml: %w", err)
	}
	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse config.yaml: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func printReport(r Report) {
	if r.Daemon.Running {
		if r.Daemon.Pid > 0 {
			fmt.Printf("Daemon: running (pid %d)\n", r.Daemon.Pid)
		} else {
			fmt.Println("Daemon: running")
		}
	} else {
		fmt.Println("Daemon: stopped")
	}

	fmt.Printf("\nQueue: %s\n", r.Queue.File)
	fmt.Printf("  %-8s %d\n", "bytes", r.Queue.Bytes)
	fmt.Printf("  %-8s %d\n", "pending", r.Queue.Pending)

	fmt.Printf("\nRecords journaled: %d\n", r.Records.Journal)
}
