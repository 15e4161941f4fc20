package provider

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcp_config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	specs, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(specs) != 0 {
		t.Errorf("expected empty map, got %d entries", len(specs))
	}
}

func TestLoadParsesServers(t *testing.T) {
	path := writeConfig(t, `{
		"mcpServers": {
			"calc": {"command": "python", "args": ["-m", "calc"], "env": {"DEBUG": "1"}},
			"weather": {"type": "sse", "url": "https://weather.example/sse", "disabled": true}
		}
	}`)

	specs, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}

	calc := specs["calc"]
	if calc.Name != "calc" {
		t.Errorf("name not filled in: %q", calc.Name)
	}
	if calc.EffectiveKind() != KindStdio {
		t.Errorf("calc kind: got %q, want stdio", calc.EffectiveKind())
	}
	if calc.Env["DEBUG"] != "1" {
		t.Errorf("calc env: %v", calc.Env)
	}

	weather := specs["weather"]
	if !weather.Disabled {
		t.Error("weather should be disabled")
	}
	if weather.EffectiveKind() != KindSSE {
		t.Errorf("weather kind: got %q", weather.EffectiveKind())
	}
}

func TestLoadInterpolatesEnv(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-123")

	path := writeConfig(t, `{
		"mcpServers": {
			"api": {"command": "run", "env": {"KEY": "${TEST_API_KEY}", "ALT": "$TEST_API_KEY", "MISSING": "$NO_SUCH_VAR_SET"}}
		}
	}`)

	specs, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	env := specs["api"].Env
	if env["KEY"] != "sk-123" {
		t.Errorf("braced ref: got %q", env["KEY"])
	}
	if env["ALT"] != "sk-123" {
		t.Errorf("bare ref: got %q", env["ALT"])
	}
	// Unset references stay literal.
	if env["MISSING"] != "$NO_SUCH_VAR_SET" {
		t.Errorf("unset ref: got %q", env["MISSING"])
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnabledSortsAndFilters(t *testing.T) {
	specs := map[string]Spec{
		"zeta":  {Name: "zeta", Command: "z"},
		"alpha": {Name: "alpha", Command: "a"},
		"off":   {Name: "off", Command: "o", Disabled: true},
	}

	got := Enabled(specs)
	want := []string{"alpha", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"stdio with command", Spec{Name: "a", Command: "python"}, false},
		{"stdio missing command", Spec{Name: "a"}, true},
		{"http with url", Spec{Name: "b", Type: KindHTTP, URL: "https://x.example"}, false},
		{"http missing url", Spec{Name: "b", Type: KindHTTP}, true},
		{"sse with url", Spec{Name: "c", Type: KindSSE, URL: "https://x.example/sse"}, false},
		{"streamable-http with url", Spec{Name: "d", Type: KindStreamableHTTP, URL: "https://x.example"}, false},
		{"unknown type", Spec{Name: "e", Type: "carrier-pigeon"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
