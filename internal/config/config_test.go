package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Models.Text != "gemini-2.0-flash-lite" {
		t.Errorf("default text model = %q", cfg.Models.Text)
	}
	if cfg.Models.Audio != "gemini-2.5-flash-lite" {
		t.Errorf("default audio model = %q", cfg.Models.Audio)
	}
	if cfg.Agent.AppName != "multimodal_app" {
		t.Errorf("default app name = %q", cfg.Agent.AppName)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load(missing) error = %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"server": {"listen_addr": ":9999"},
		"models": {"text": "from-file"},
		"sessions": {"max_idle": "2h"}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("EDU_AGENT_TEXT_MODEL", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("listen addr = %q, want file value", cfg.Server.ListenAddr)
	}
	if cfg.Models.Text != "from-env" {
		t.Errorf("text model = %q, env must win over file", cfg.Models.Text)
	}
	// Untouched fields keep defaults.
	if cfg.Models.Audio != "gemini-2.5-flash-lite" {
		t.Errorf("audio model = %q, want default", cfg.Models.Audio)
	}

	d, err := cfg.SessionMaxIdle()
	if err != nil {
		t.Fatalf("SessionMaxIdle() error = %v", err)
	}
	if d != 2*time.Hour {
		t.Errorf("SessionMaxIdle() = %v, want 2h", d)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty text model", func(c *Config) { c.Models.Text = "" }},
		{"unknown backend", func(c *Config) { c.Artifacts.Backend = "redis" }},
		{"file backend without dir", func(c *Config) { c.Artifacts.Backend = "file" }},
		{"sqlite backend without path", func(c *Config) { c.Artifacts.Backend = "sqlite" }},
		{"bad max_idle", func(c *Config) { c.Sessions.MaxIdle = "soon" }},
		{"bad telemetry protocol", func(c *Config) { c.Telemetry.Protocol = "carrier-pigeon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted a bad config")
			}
		})
	}
}
