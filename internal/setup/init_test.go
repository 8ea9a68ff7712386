package setup

import (
	"os"
	"path/filepath"
	"testing"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/overlaybridge/relay/internal/model"
)

func TestRun_CreatesLayout(t *testing.T) {
	projectDir := t.TempDir()

	if err := Run(projectDir, ""); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	base := filepath.Join(projectDir, ".relay")
	for _, d := range []string{"logs", "locks", "spool"} {
		info, err := os.Stat(filepath.Join(base, d))
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s: %v", d, err)
		}
	}

	for _, f := range []string{"config.yaml", "commands.txt", filepath.Join("locks", "daemon.lock")} {
		if _, err := os.Stat(filepath.Join(base, f)); err != nil {
			t.Errorf("expected file %s: %v", f, err)
		}
	}
}

func TestRun_ConfigContent(t *testing.T) {
	projectDir := t.TempDir()

	if err := Run(projectDir, ""); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(projectDir, ".relay", "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	if cfg.Project.Name != filepath.Base(projectDir) {
		t.Errorf("project.name = %q, want %q", cfg.Project.Name, filepath.Base(projectDir))
	}
	if cfg.Relay.ProjectRoot != projectDir {
		t.Errorf("relay.project_root = %q, want %q", cfg.Relay.ProjectRoot, projectDir)
	}
	if cfg.Relay.Created == "" {
		t.Error("relay.created not set")
	}
	if cfg.Queue.File != "commands.txt" {
		t.Errorf("queue.file = %q", cfg.Queue.File)
	}
	if cfg.Queue.Drain != model.DrainTruncate {
		t.Errorf("queue.drain = %q", cfg.Queue.Drain)
	}
}

func TestRun_ExplicitName(t *testing.T) {
	projectDir := t.TempDir()

	if err := Run(projectDir, "overlay-host"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(projectDir, ".relay", "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Project.Name != "overlay-host" {
		t.Errorf("project.name = %q, want overlay-host", cfg.Project.Name)
	}
}

func TestRun_RefusesExisting(t *testing.T) {
	projectDir := t.TempDir()

	if err := Run(projectDir, ""); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if err := Run(projectDir, ""); err == nil {
		t.Fatal("expected error for existing .relay/")
	}
}

func TestRun_DropFileEmpty(t *testing.T) {
	projectDir := t.TempDir()

	if err := Run(projectDir, ""); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(projectDir, ".relay", "commands.txt"))
	if err != nil {
		t.Fatalf("stat drop file: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("expected empty drop file, got %d bytes", info.Size())
	}
}
