package main

import (
	"testing"
)

func TestParseSlotArg(t *testing.T) {
	if n, err := parseSlotArg("2"); err != nil || n != 2 {
		t.Fatalf("parseSlotArg(2): n=%d err=%v", n, err)
	}
	for _, bad := range []string{"", "x", "0", "-1", "1.5"} {
		if _, err := parseSlotArg(bad); err == nil {
			t.Fatalf("parseSlotArg(%q) should fail", bad)
		}
	}
}

func TestBuildRootRegistersCommands(t *testing.T) {
	root := buildRoot()
	want := []string{
		"status", "build", "start", "start-all", "stop", "stop-all",
		"logs", "demo", "generate-keys", "history",
	}
	have := make(map[string]bool)
	for _, c := range root.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Fatalf("command %q not registered", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Fatalf("--config flag missing")
	}
	if root.PersistentFlags().Lookup("verbose") == nil {
		t.Fatalf("--verbose flag missing")
	}
}
