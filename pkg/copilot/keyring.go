// keyring.go provides credential storage using the operating system's
// native keyring (Linux: Secret Service/GNOME Keyring, macOS: Keychain,
// Windows: Credential Manager).
//
// Priority for resolving the completion API key:
//  1. OS keyring (encrypted by the OS, requires user session)
//  2. Environment variable (COPILOT_API_KEY, GROQ_API_KEY)
//  3. config.yaml value (least secure, plaintext on disk)
package copilot

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "discord-copilot"

	// keyringAPIKey is the key name for the LLM API key.
	keyringAPIKey = "api_key"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// ReadPassword reads a secret from the terminal without echoing.
// Falls back to regular stdin reading if a terminal is not available.
func ReadPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(os.Stdin.Fd())
	secret, err := term.ReadPassword(fd)
	if err != nil {
		// Fallback for piped input or non-TTY (with echo).
		var buf [1024]byte
		n, readErr := os.Stdin.Read(buf[:])
		if readErr != nil {
			return "", fmt.Errorf("reading secret: %w", readErr)
		}
		secret = buf[:n]
	}

	fmt.Println()

	return strings.TrimRight(string(secret), "\r\n"), nil
}

// ResolveAPIKey resolves the completion API key using the priority chain
// keyring → env var → config value, updating the config in-place.
// resolveSecrets has already consulted the environment by the time this
// runs, so only the keyring lookup remains.
func ResolveAPIKey(cfg *Config, logger *slog.Logger) {
	if val := GetKeyring(keyringAPIKey); val != "" {
		cfg.API.APIKey = val
		logger.Debug("API key loaded from OS keyring")
		return
	}

	if cfg.API.APIKey != "" {
		logger.Debug("API key loaded from environment or config")
	}
}
