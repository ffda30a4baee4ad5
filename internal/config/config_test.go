package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "lockstep.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Sync.Enabled || !cfg.Sync.CanonicalCellOrder {
		t.Fatalf("sync defaults: %+v", cfg.Sync)
	}
	if len(cfg.Worlds) != 1 || cfg.Transport.MaxQueue != 256 {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	p := writeFile(t, `
sync:
  enabled: true
  canonical_cell_order: false
worlds:
  - {id: 4, size_x: 10, size_z: 10}
  - {id: 1, size_x: 20, size_z: 30}
transport:
  url: ws://relay:9000/v1/ws
log:
  level: DEBUG
  format: json
`)
	t.Setenv("LOCKSTEP_URL", "ws://override:1/v1/ws")
	t.Setenv("LOCKSTEP_JOURNAL_DISABLED", "true")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sync.CanonicalCellOrder {
		t.Fatalf("file value ignored")
	}
	if cfg.Worlds[0].ID != 1 || cfg.Worlds[1].ID != 4 {
		t.Fatalf("worlds not sorted: %+v", cfg.Worlds)
	}
	if cfg.Transport.URL != "ws://override:1/v1/ws" {
		t.Fatalf("env override ignored: %q", cfg.Transport.URL)
	}
	if !cfg.Journal.Disabled {
		t.Fatalf("journal env override ignored")
	}
	if cfg.Transport.Listen != ":8080" {
		t.Fatalf("default lost: %q", cfg.Transport.Listen)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log: %+v", cfg.Log)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"duplicate": "worlds:\n  - {id: 1, size_x: 1, size_z: 1}\n  - {id: 1, size_x: 1, size_z: 1}\n",
		"size":      "worlds:\n  - {id: 1, size_x: 0, size_z: 1}\n",
		"empty":     "worlds: []\n",
		"format":    "log:\n  format: xml\n",
	}
	for name, body := range cases {
		if _, err := Load(writeFile(t, body)); err == nil || !strings.Contains(err.Error(), "config:") {
			t.Fatalf("%s: got %v", name, err)
		}
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("LOCKSTEP_MAX_QUEUE", "lots")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("got %v", err)
	}
}
