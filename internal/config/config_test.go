package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if cfg.Hub.Addr != "127.0.0.1:8765" {
		t.Errorf("Hub.Addr = %q, want %q", cfg.Hub.Addr, "127.0.0.1:8765")
	}
	if cfg.Admin.Addr != "127.0.0.1:8081" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, "127.0.0.1:8081")
	}
	if cfg.Bridge.ProxyBin != "mcp-proxy" {
		t.Errorf("ProxyBin = %q, want %q", cfg.Bridge.ProxyBin, "mcp-proxy")
	}
	if cfg.Bridge.PollInterval != "10s" {
		t.Errorf("PollInterval = %q, want %q", cfg.Bridge.PollInterval, "10s")
	}
	if cfg.Store.DBPath != "./data/mcpbridge.db" {
		t.Errorf("DBPath = %q", cfg.Store.DBPath)
	}
	if cfg.Store.ToolCachePath != "./data/tool_catalogs.json" {
		t.Errorf("ToolCachePath = %q", cfg.Store.ToolCachePath)
	}
	if cfg.PubSub.Backend != "memory" {
		t.Errorf("PubSub.Backend = %q, want %q", cfg.PubSub.Backend, "memory")
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{LogLevel: "warn"},
		Hub:    HubConfig{Addr: ":9090"},
		Bridge: BridgeConfig{ProxyBin: "/opt/bin/mcp-proxy", PollInterval: "30s"},
		PubSub: PubSubConfig{Backend: "redis", RedisAddr: "localhost:6379"},
	}

	cfg.SetDefaults()

	if cfg.Server.LogLevel != "warn" {
		t.Errorf("LogLevel was overwritten: got %q", cfg.Server.LogLevel)
	}
	if cfg.Hub.Addr != ":9090" {
		t.Errorf("Hub.Addr was overwritten: got %q", cfg.Hub.Addr)
	}
	if cfg.Bridge.ProxyBin != "/opt/bin/mcp-proxy" {
		t.Errorf("ProxyBin was overwritten: got %q", cfg.Bridge.ProxyBin)
	}
	if cfg.Bridge.PollInterval != "30s" {
		t.Errorf("PollInterval was overwritten: got %q", cfg.Bridge.PollInterval)
	}
	if cfg.PubSub.Backend != "redis" {
		t.Errorf("PubSub.Backend was overwritten: got %q", cfg.PubSub.Backend)
	}
}

func TestConfig_SetDevDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if cfg.Server.LogLevel != "debug" {
		t.Errorf("dev mode LogLevel = %q, want %q", cfg.Server.LogLevel, "debug")
	}

	cfg2 := Config{Server: ServerConfig{LogLevel: "warn"}}
	cfg2.SetDefaults()
	cfg2.SetDevDefaults()

	if cfg2.Server.LogLevel != "warn" {
		t.Errorf("non-dev LogLevel = %q, want %q", cfg2.Server.LogLevel, "warn")
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mcpbridge.yaml")
	_ = os.WriteFile(cfgPath, []byte("hub:\n  addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_MatchesYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mcpbridge.yml")
	_ = os.WriteFile(cfgPath, []byte("hub:\n  addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Simulate the binary: a file named "mcpbridge" with no extension
	_ = os.WriteFile(filepath.Join(dir, "mcpbridge"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "mcpbridge.yaml")
	ymlPath := filepath.Join(dir, "mcpbridge.yml")
	_ = os.WriteFile(yamlPath, []byte("hub:\n  addr: :8080\n"), 0644)
	_ = os.WriteFile(ymlPath, []byte("hub:\n  addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}
