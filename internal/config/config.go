// Package config loads clawbridge's root configuration: a JSON file of
// non-secret settings overlaid with environment-variable secrets, mirroring
// the teacher's internal/config/config.go layering (Default() + Load()
// overlay + json:"-" secret fields) trimmed to this system's scope.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// FlexibleStringSlice accepts both ["a","b"] and [1,2] in JSON, matching
// the teacher's convention for fields that occasionally arrive as numbers
// from looser hand-edited config files.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the bridge.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Agent     AgentConfig     `json:"agent"`
	Sessions  SessionsConfig  `json:"sessions"`
	Skills    SkillsConfig    `json:"skills"`
	Progress  ProgressConfig  `json:"progress"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// TelegramConfig configures the bot's Telegram surface. Token is never
// persisted to config.json — it is read from CLAWBRIDGE_TELEGRAM_TOKEN only.
type TelegramConfig struct {
	Token          string              `json:"-"`
	AllowedUserIDs FlexibleStringSlice `json:"allowed_user_ids,omitempty"`
}

// AgentConfig configures the backend agent connection and the Tool
// Permission Gate's directory allowlist.
type AgentConfig struct {
	ApprovedDirectories []string            `json:"approved_directories"`
	DefaultModel        string              `json:"default_model,omitempty"`
	DefaultBetas        FlexibleStringSlice `json:"default_betas,omitempty"`
	IdleTimeoutMinutes  int                 `json:"idle_timeout_minutes,omitempty"` // default 60
}

// SessionsConfig locates the shared history index and per-session
// transcripts.
type SessionsConfig struct {
	HistoryPath string `json:"history_path,omitempty"` // default ~/.claude/history.jsonl
	ProjectsDir string `json:"projects_dir,omitempty"` // default ~/.claude/projects
}

// SkillsConfig locates the Skill Resolver's discovery paths.
type SkillsConfig struct {
	PersonalSkillsDir   string `json:"personal_skills_dir,omitempty"`
	PersonalCommandsDir string `json:"personal_commands_dir,omitempty"`
	PluginsJSON         string `json:"plugins_json,omitempty"`
	SettingsJSON        string `json:"settings_json,omitempty"`
}

// ProgressConfig tunes the Progress Manager's throttle and rollover.
type ProgressConfig struct {
	UpdateIntervalSeconds       int `json:"update_interval_seconds,omitempty"`        // default 2
	RolloverThresholdChars      int `json:"rollover_threshold_chars,omitempty"`       // default 4000
	AlbumCoalesceTimeoutSeconds int `json:"album_coalesce_timeout_seconds,omitempty"` // default 2
}

// DatabaseConfig configures Postgres persistence. PostgresDSN is never
// persisted to config.json — it is read from CLAWBRIDGE_POSTGRES_DSN only.
type DatabaseConfig struct {
	PostgresDSN   string `json:"-"`
	MigrationsDir string `json:"migrations_dir,omitempty"` // default internal/store/migrations
}

// TelemetryConfig names the service for span attribution; there is no
// collector endpoint to configure (see internal/telemetry).
type TelemetryConfig struct {
	ServiceName string `json:"service_name,omitempty"`
}

// Default returns a Config with sensible defaults, mirroring the teacher's
// config.Default().
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			DefaultModel:       "claude-sonnet-4-5-20250929",
			IdleTimeoutMinutes: 60,
		},
		Sessions: SessionsConfig{
			HistoryPath: "~/.claude/history.jsonl",
			ProjectsDir: "~/.claude/projects",
		},
		Progress: ProgressConfig{
			UpdateIntervalSeconds:       2,
			RolloverThresholdChars:      4000,
			AlbumCoalesceTimeoutSeconds: 2,
		},
		Database: DatabaseConfig{
			MigrationsDir: "internal/store/migrations",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "clawbridge",
		},
	}
}

// Load reads config from a JSON file, then overlays environment-variable
// secrets. A missing file is not an error — Default() plus env overrides
// is a valid configuration for local runs.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays secrets and operational overrides read from
// the environment. Env vars always take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("CLAWBRIDGE_TELEGRAM_TOKEN", &c.Telegram.Token)
	envStr("CLAWBRIDGE_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("CLAWBRIDGE_DEFAULT_MODEL", &c.Agent.DefaultModel)

	if v := os.Getenv("CLAWBRIDGE_IDLE_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Agent.IdleTimeoutMinutes = n
		}
	}
}

// IsManagedMode reports whether Postgres persistence is configured. Without
// a DSN, the bridge runs session resolution purely off the shared history
// index — no persisted BotSession row, no cross-restart memory of which
// directory/session a user was last in.
func (c *Config) IsManagedMode() bool {
	return c.Database.PostgresDSN != ""
}
