// loader.go handles loading configuration from YAML files with credential
// resolution via environment variables and .env files.
package copilot

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} or $VAR_NAME in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadConfigFromFile reads and parses a YAML configuration file.
// Automatically loads .env files and expands environment variables.
func LoadConfigFromFile(path string) (*Config, error) {
	// Load .env files (silently ignore if not found).
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in YAML before parsing.
	expanded := expandEnvVars(string(data))

	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}

	// Resolve secrets from environment (override empty values).
	resolveSecrets(cfg)

	return cfg, nil
}

// LoadConfigFromEnv builds a configuration from defaults plus environment
// variables only, for deployments without a config file.
func LoadConfigFromEnv() *Config {
	loadEnvFiles()
	cfg := DefaultConfig()
	resolveSecrets(cfg)
	return cfg
}

// ParseConfig parses YAML bytes into a Config.
// Starts with defaults and overlays values from the YAML.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	return cfg, nil
}

// SaveConfigToFile writes a Config as YAML to the specified path.
// Secrets are replaced with environment variable references.
func SaveConfigToFile(cfg *Config, path string) error {
	sanitized := *cfg
	sanitized.API.APIKey = sanitizeSecret(cfg.API.APIKey, "COPILOT_API_KEY")
	sanitized.Discord.Token = sanitizeSecret(cfg.Discord.Token, "DISCORD_TOKEN")
	sanitized.Storage.DSN = sanitizeSecret(cfg.Storage.DSN, "DATABASE_URL")

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Write with restricted permissions (owner read/write only).
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"copilot.yaml",
		"copilot.yml",
		"configs/config.yaml",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Validate checks that all startup-critical settings are present.
// A missing credential here is a fatal condition for serve mode.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord bot token is required (set DISCORD_TOKEN)")
	}
	if c.API.APIKey == "" {
		return fmt.Errorf("completion API key is required (set COPILOT_API_KEY or GROQ_API_KEY)")
	}
	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("postgres DSN is required (set DATABASE_URL)")
		}
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("sqlite database path is required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q (want postgres or sqlite)", c.Storage.Driver)
	}
	return nil
}

// ---------- Internal ----------

// loadEnvFiles loads .env files from standard locations.
func loadEnvFiles() {
	envFiles := []string{
		".env",
		".env.local",
	}

	for _, f := range envFiles {
		// godotenv.Load does NOT overwrite existing env vars.
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR} and $VAR references in a string
// with their environment variable values.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}

		// Return original if env var not set (allows placeholder to remain).
		return match
	})
}

// resolveSecrets fills in config secrets from environment variables
// when the config value is empty or a placeholder.
func resolveSecrets(cfg *Config) {
	if cfg.API.APIKey == "" || IsEnvReference(cfg.API.APIKey) {
		if key := os.Getenv("COPILOT_API_KEY"); key != "" {
			cfg.API.APIKey = key
		} else if key := os.Getenv("GROQ_API_KEY"); key != "" {
			cfg.API.APIKey = key
		}
	}

	if cfg.Discord.Token == "" || IsEnvReference(cfg.Discord.Token) {
		if tok := os.Getenv("DISCORD_TOKEN"); tok != "" {
			cfg.Discord.Token = tok
		}
	}

	if cfg.Storage.DSN == "" || IsEnvReference(cfg.Storage.DSN) {
		if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
			cfg.Storage.DSN = dsn
		}
	}

	if cfg.WebUI.AuthToken == "" || IsEnvReference(cfg.WebUI.AuthToken) {
		if tok := os.Getenv("COPILOT_ADMIN_TOKEN"); tok != "" {
			cfg.WebUI.AuthToken = tok
		}
	}
}

// sanitizeSecret replaces a real secret with an env var reference
// for safe storage in config files.
func sanitizeSecret(value, envVar string) string {
	if value == "" || IsEnvReference(value) {
		return value
	}
	if os.Getenv(envVar) == value {
		return "${" + envVar + "}"
	}
	return value
}

// IsEnvReference checks if a string is an environment variable reference.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "${") || strings.HasPrefix(s, "$")
}
