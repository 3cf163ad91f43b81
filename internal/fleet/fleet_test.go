package fleet

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(cfg.Slots))
	}
	if got := cfg.SlotNumbers(); got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("slot numbers not ascending: %v", got)
	}
}

func TestValidateRejectsDuplicates(t *testing.T) {
	cfg := Default()
	cfg.Slots[1].Number = 1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected duplicate slot number error")
	}
	cfg = Default()
	cfg.Slots[2].Port = cfg.Slots[0].Port
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected duplicate port error")
	}
}

func TestValidateRejectsBadSlot(t *testing.T) {
	cfg := Default()
	cfg.Slots[0].Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid port error")
	}
	cfg = Default()
	cfg.Slots[0].Name = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing name error")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.toml")
	content := `
host = "0.0.0.0"

[paths]
base_dir = "/tmp/fleet"
logs_dir = "out"

[commands]
server = "./server-bin"

[[slots]]
number = 1
name = "Solo"
port = 4001
config = "solo.yaml"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "0.0.0.0" {
		t.Fatalf("host overlay lost: %q", cfg.Host)
	}
	if len(cfg.Slots) != 1 || cfg.Slots[0].Port != 4001 {
		t.Fatalf("slots overlay lost: %+v", cfg.Slots)
	}
	if cfg.Commands.Server != "./server-bin" {
		t.Fatalf("command overlay lost: %q", cfg.Commands.Server)
	}
	// untouched defaults survive
	if cfg.Commands.Build != "cargo build" {
		t.Fatalf("default build command lost: %q", cfg.Commands.Build)
	}
	if cfg.LogsDir() != filepath.Join("/tmp/fleet", "out") {
		t.Fatalf("logs dir resolution: %q", cfg.LogsDir())
	}
}

func TestLoadRejectsInvalidOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.toml")
	content := `
[[slots]]
number = 1
name = "A"
port = 4001
config = "a.yaml"

[[slots]]
number = 1
name = "B"
port = 4002
config = "b.yaml"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected duplicate slot error from Load")
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := Default()
	cfg.Paths.BaseDir = "/base"
	s, ok := cfg.Slot(2)
	if !ok {
		t.Fatalf("slot 2 missing")
	}
	if got := cfg.LogFile(2); got != "/base/logs/server2.log" {
		t.Fatalf("LogFile: %q", got)
	}
	if got := cfg.ConfigPath(s); got != "/base/configs/server2_config.yaml" {
		t.Fatalf("ConfigPath: %q", got)
	}
	if got := cfg.KeyFile(2); got != "/base/keys/server2_private_key.pem" {
		t.Fatalf("KeyFile: %q", got)
	}
	if _, ok := cfg.Slot(9); ok {
		t.Fatalf("slot 9 should not exist")
	}
}
