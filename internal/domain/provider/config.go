package provider

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"
)

// DefaultConfigPath is used when the MCP_CONFIG environment variable is
// not set.
const DefaultConfigPath = "./data/mcp_config.json"

// ConfigPath returns the provider config file location, honoring the
// MCP_CONFIG environment variable.
func ConfigPath() string {
	if p := os.Getenv("MCP_CONFIG"); p != "" {
		return p
	}
	return DefaultConfigPath
}

// configFile mirrors the on-disk shape: {"mcpServers": {name: spec}}.
type configFile struct {
	MCPServers map[string]Spec `json:"mcpServers"`
}

// envRef matches $VAR and ${VAR} references.
var envRef = regexp.MustCompile(`\$\{(\w+)\}|\$(\w+)`)

// expandEnv substitutes $VAR and ${VAR} with values from the process
// environment. References to unset variables are left untouched, so a
// literal "$HOME" in a config written on another machine stays visible
// instead of silently becoming empty.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		groups := envRef.FindSubmatch(ref)
		name := string(groups[1])
		if name == "" {
			name = string(groups[2])
		}
		if val, ok := os.LookupEnv(name); ok {
			return []byte(val)
		}
		return ref
	})
}

// Load reads the provider config file. A missing file yields an empty
// map, not an error. Environment references are interpolated before the
// JSON is parsed, so values like "${API_KEY}" work inside any string.
func Load(path string) (map[string]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Spec{}, nil
		}
		return nil, fmt.Errorf("read provider config: %w", err)
	}

	var cfg configFile
	if err := json.Unmarshal(expandEnv(data), &cfg); err != nil {
		return nil, fmt.Errorf("parse provider config: %w", err)
	}

	specs := make(map[string]Spec, len(cfg.MCPServers))
	for name, spec := range cfg.MCPServers {
		spec.Name = name
		specs[name] = spec
	}
	return specs, nil
}

// Enabled returns the names of all non-disabled providers, sorted for
// deterministic reconcile ordering.
func Enabled(specs map[string]Spec) []string {
	names := make([]string, 0, len(specs))
	for name, spec := range specs {
		if !spec.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ModTime returns the config file's modification time, or the zero time
// when the file does not exist. Used by the reconciler's change poll.
func ModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
