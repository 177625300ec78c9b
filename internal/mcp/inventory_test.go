package mcp

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseInventory_WrappedLayout(t *testing.T) {
	data := []byte(`{
		"servers": {
			"weather": {"command": "python", "args": ["weather_server.py"]},
			"calc": {"command": "node", "args": ["calc.js"], "env": {"DEBUG": "1"}}
		}
	}`)
	inv, err := ParseInventory(data)
	if err != nil {
		t.Fatalf("ParseInventory: %v", err)
	}
	if len(inv.Servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(inv.Servers))
	}
	// Deterministic sorted order.
	if inv.Servers[0].ID != "calc" || inv.Servers[1].ID != "weather" {
		t.Errorf("order = %s, %s", inv.Servers[0].ID, inv.Servers[1].ID)
	}
	if inv.Servers[0].Env["DEBUG"] != "1" {
		t.Errorf("env not parsed: %#v", inv.Servers[0].Env)
	}
}

func TestParseInventory_FlatLayout(t *testing.T) {
	data := []byte(`{"weather": {"command": "python", "args": ["weather_server.py"]}}`)
	inv, err := ParseInventory(data)
	if err != nil {
		t.Fatalf("ParseInventory: %v", err)
	}
	if len(inv.Servers) != 1 || inv.Servers[0].ID != "weather" {
		t.Fatalf("unexpected inventory: %#v", inv.Servers)
	}
}

func TestParseInventory_FailFast(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty command", `{"bad": {"command": ""}}`},
		{"shell metacharacters", `{"bad": {"command": "python; rm -rf /"}}`},
		{"no entries", `{}`},
		{"not json", `nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseInventory([]byte(tt.data)); err == nil {
				t.Errorf("ParseInventory(%q) should fail", tt.data)
			}
		})
	}
}

func TestLoadInventory_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp_servers.json")
	content := `{"servers": {"echo": {"command": "cat"}}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	inv, err := LoadInventory(path)
	if err != nil {
		t.Fatalf("LoadInventory: %v", err)
	}
	if inv.Servers[0].Command != "cat" {
		t.Errorf("command = %q", inv.Servers[0].Command)
	}

	if _, err := LoadInventory(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestRegistryRequestIDsMonotonic(t *testing.T) {
	r := NewRegistry(testLogger(), 0)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := r.nextRequestID("s1")
		if seen[id] {
			t.Fatalf("duplicate request id %s", id)
		}
		seen[id] = true
	}
}
