package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pairdemo.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "listen: \":9300\"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "pairdemo" {
		t.Errorf("default name = %q", cfg.Name)
	}
	if cfg.Codec != "json" {
		t.Errorf("default codec = %q", cfg.Codec)
	}
	if cfg.CallTimeout() != 0 {
		t.Errorf("unset call timeout = %v", cfg.CallTimeout())
	}
}

func TestLoadFull(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
name: renderer
debug: true
connect: "localhost:9300"
codec: msgpack
call_timeout_ms: 250
emit_timeout_ms: 100
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "renderer" || !cfg.Debug || cfg.Connect != "localhost:9300" {
		t.Fatalf("parsed %+v", cfg)
	}
	if cfg.CallTimeout() != 250*time.Millisecond {
		t.Errorf("call timeout = %v", cfg.CallTimeout())
	}
	if cfg.EmitTimeout() != 100*time.Millisecond {
		t.Errorf("emit timeout = %v", cfg.EmitTimeout())
	}
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	cases := map[string]string{
		"both sides":       "listen: \":1\"\nconnect: \"x:1\"\n",
		"neither side":     "name: x\n",
		"unknown codec":    "listen: \":1\"\ncodec: xml\n",
		"negative timeout": "listen: \":1\"\ncall_timeout_ms: -5\n",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: config accepted", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("missing file accepted")
	}
}
