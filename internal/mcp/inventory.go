package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ServerConfig describes how to spawn one MCP server subprocess.
type ServerConfig struct {
	ID          string            `json:"-"`
	Command     string            `json:"command"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Description string            `json:"description,omitempty"`
}

// Validate rejects entries that cannot be spawned safely.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("server %q: command is required", c.ID)
	}
	if strings.ContainsAny(c.Command, ";|&$`") {
		return fmt.Errorf("server %q: command contains shell metacharacters", c.ID)
	}
	for _, arg := range c.Args {
		if strings.Contains(arg, "..") && strings.Contains(arg, "/") {
			return fmt.Errorf("server %q: argument %q looks like path traversal", c.ID, arg)
		}
	}
	return nil
}

// Inventory is the parsed server-inventory descriptor, ordered by server id
// so startup and catalogue merging are deterministic.
type Inventory struct {
	Servers []*ServerConfig
}

// LoadInventory reads the on-disk descriptor. Both layouts are accepted:
// {"servers": {id: entry}} and {id: entry} at the top level. Validation is
// fail-fast; one bad entry aborts the load.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory %s: %w", path, err)
	}
	return ParseInventory(data)
}

// ParseInventory parses descriptor bytes. See LoadInventory.
func ParseInventory(data []byte) (*Inventory, error) {
	var wrapped struct {
		Servers map[string]*ServerConfig `json:"servers"`
	}
	entries := map[string]*ServerConfig{}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Servers) > 0 {
		entries = wrapped.Servers
	} else {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parse inventory: %w", err)
		}
		delete(entries, "servers")
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("parse inventory: no server entries")
	}

	ids := make([]string, 0, len(entries))
	for id, entry := range entries {
		if entry == nil {
			return nil, fmt.Errorf("server %q: empty entry", id)
		}
		entry.ID = id
		if err := entry.Validate(); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	inv := &Inventory{Servers: make([]*ServerConfig, 0, len(ids))}
	for _, id := range ids {
		inv.Servers = append(inv.Servers, entries[id])
	}
	return inv, nil
}
