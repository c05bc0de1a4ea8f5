// Package config loads service configuration from a JSON file plus env
// var overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/titanous/json5"
)

// Config is the root configuration for the edu-agent service.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Models    ModelsConfig    `json:"models"`
	Agent     AgentConfig     `json:"agent"`
	Artifacts ArtifactsConfig `json:"artifacts"`
	Sessions  SessionsConfig  `json:"sessions"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

type ServerConfig struct {
	ListenAddr string `json:"listen_addr,omitempty"` // default ":8080"
	LogLevel   string `json:"log_level,omitempty"`   // "debug", "info", "warn", "error"
}

// ModelsConfig names the two model identifiers modality dispatch chooses
// between.
type ModelsConfig struct {
	Text  string `json:"text,omitempty"`  // serves text-only turns
	Audio string `json:"audio,omitempty"` // serves turns containing audio input
}

type AgentConfig struct {
	AppName     string `json:"app_name,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

// ArtifactsConfig selects the artifact store backend.
type ArtifactsConfig struct {
	Backend string `json:"backend,omitempty"` // "memory" (default), "file", "sqlite"
	Dir     string `json:"dir,omitempty"`     // file backend: storage directory
	DBPath  string `json:"db_path,omitempty"` // sqlite backend: database path
}

type SessionsConfig struct {
	// MaxIdle > 0 evicts sessions idle longer than this (Go duration,
	// e.g. "2h"). Empty keeps sessions for the process lifetime.
	MaxIdle string `json:"max_idle,omitempty"`
}

// TelemetryConfig configures OTLP trace export. Disabled by default.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool   `json:"insecure,omitempty"`     // plaintext export, local dev only
	ServiceName string `json:"service_name,omitempty"` // default "edu-agent"
}

// DefaultInstruction is the agent's standing instruction.
const DefaultInstruction = "You are a helpful assistant. Respond to user queries. " +
	"If you receive audio, acknowledge it and try to answer based on your understanding. " +
	"If you receive text, answer directly. Your final output should always be text."

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   "info",
		},
		Models: ModelsConfig{
			Text:  "gemini-2.0-flash-lite",
			Audio: "gemini-2.5-flash-lite",
		},
		Agent: AgentConfig{
			AppName:     "multimodal_app",
			Instruction: DefaultInstruction,
		},
		Artifacts: ArtifactsConfig{
			Backend: "memory",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "edu-agent",
		},
	}
}

// Load reads config from a JSON file, then overlays env vars. A missing
// file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("EDU_AGENT_LISTEN_ADDR", &c.Server.ListenAddr)
	envStr("EDU_AGENT_LOG_LEVEL", &c.Server.LogLevel)
	envStr("EDU_AGENT_TEXT_MODEL", &c.Models.Text)
	envStr("EDU_AGENT_AUDIO_MODEL", &c.Models.Audio)
	envStr("EDU_AGENT_APP_NAME", &c.Agent.AppName)
	envStr("EDU_AGENT_ARTIFACT_BACKEND", &c.Artifacts.Backend)
	envStr("EDU_AGENT_ARTIFACT_DIR", &c.Artifacts.Dir)
	envStr("EDU_AGENT_ARTIFACT_DB", &c.Artifacts.DBPath)
	envStr("EDU_AGENT_SESSION_MAX_IDLE", &c.Sessions.MaxIdle)
	envStr("EDU_AGENT_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Models.Text == "" || c.Models.Audio == "" {
		return fmt.Errorf("models.text and models.audio must both be set")
	}
	switch c.Artifacts.Backend {
	case "", "memory":
	case "file":
		if c.Artifacts.Dir == "" {
			return fmt.Errorf("artifacts.dir required for the file backend")
		}
	case "sqlite":
		if c.Artifacts.DBPath == "" {
			return fmt.Errorf("artifacts.db_path required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown artifacts.backend %q", c.Artifacts.Backend)
	}
	if _, err := c.SessionMaxIdle(); err != nil {
		return err
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("unknown telemetry.protocol %q", c.Telemetry.Protocol)
	}
	return nil
}

// SessionMaxIdle parses sessions.max_idle; zero means no eviction.
func (c *Config) SessionMaxIdle() (time.Duration, error) {
	if c.Sessions.MaxIdle == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Sessions.MaxIdle)
	if err != nil {
		return 0, fmt.Errorf("parse sessions.max_idle: %w", err)
	}
	return d, nil
}
