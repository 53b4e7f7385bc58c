// Package copilot implements the Discord Copilot daemon: a mention-driven
// assistant that forwards user text plus rolling conversation context to an
// LLM completion API and keeps a bounded per-channel summary in persistent
// storage.
//
// config.go defines all configuration structures.
package copilot

import (
	"github.com/hem26/Discord-Copilot/pkg/copilot/channels/discord"
	"github.com/hem26/Discord-Copilot/pkg/copilot/webui"
)

// Config holds all daemon configuration.
type Config struct {
	// Name is the assistant name used in logs.
	Name string `yaml:"name"`

	// Discord is the Discord gateway configuration.
	Discord discord.Config `yaml:"discord"`

	// API configures the LLM completion endpoint.
	API APIConfig `yaml:"api"`

	// Storage configures the persistence backend.
	Storage StorageConfig `yaml:"storage"`

	// WebUI configures the administrative HTTP surface.
	WebUI webui.Config `yaml:"webui"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the completion API client.
type APIConfig struct {
	// BaseURL is the OpenAI-compatible API root
	// (e.g. "https://api.groq.com/openai/v1").
	BaseURL string `yaml:"base_url"`

	// APIKey is the bearer token. Prefer the OS keyring or the
	// COPILOT_API_KEY / GROQ_API_KEY environment variables over
	// a plaintext value here.
	APIKey string `yaml:"api_key"`

	// Model is the completion model name.
	Model string `yaml:"model"`

	// TimeoutSeconds is the hard per-call timeout.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// StorageConfig configures the persistence backend.
type StorageConfig struct {
	// Driver selects the backend: "postgres" or "sqlite".
	Driver string `yaml:"driver"`

	// DSN is the PostgreSQL connection string (postgres driver).
	DSN string `yaml:"dsn"`

	// Path is the database file path (sqlite driver).
	Path string `yaml:"path"`

	// RefreshSchedule is the cron spec for the periodic configuration
	// refresh. Under postgres it is a staleness guard behind the change
	// feed; under sqlite it is the only convergence path for dashboard
	// edits.
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default daemon configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "Discord Copilot",
		Discord: discord.DefaultConfig(),
		API: APIConfig{
			BaseURL:        "https://api.groq.com/openai/v1",
			Model:          "llama-3.1-8b-instant",
			TimeoutSeconds: 15,
		},
		Storage: StorageConfig{
			Driver:          "postgres",
			Path:            "./data/copilot.db",
			RefreshSchedule: "@every 10m",
		},
		WebUI: webui.Config{
			Enabled: true,
			Address: ":8090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
