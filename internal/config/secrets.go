package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// envDir holds one file per variable, named after it, for deployments that
// provision secrets as files.
var envDir = "/etc/envdir"

// ConfigurationError reports a required setting that could not be resolved.
type ConfigurationError struct {
	Variable string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s is not set", e.Variable)
}

// ResolveSecretKeys returns the active signing keys. The first source that
// yields at least one key wins: explicit, RELAY_SECRET_KEYS (comma
// separated), RELAY_SECRET_KEY, then the RELAY_SECRET_KEY file in envDir.
func ResolveSecretKeys(explicit []string) ([]string, error) {
	if keys := nonBlank(explicit); len(keys) > 0 {
		return keys, nil
	}
	if keys := splitList(os.Getenv("RELAY_SECRET_KEYS")); len(keys) > 0 {
		return keys, nil
	}
	if v := strings.TrimSpace(os.Getenv("RELAY_SECRET_KEY")); v != "" {
		return []string{v}, nil
	}

	data, err := readEnvFile("RELAY_SECRET_KEY")
	if err != nil {
		return nil, err
	}
	if keys := splitList(data); len(keys) > 0 {
		return keys, nil
	}
	return nil, &ConfigurationError{Variable: "RELAY_SECRET_KEY"}
}

// ResolveRelayURL returns explicit, RELAY_URL, or the RELAY_URL file in
// envDir, in that order.
func ResolveRelayURL(explicit string) (string, error) {
	if v := strings.TrimSpace(explicit); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv("RELAY_URL")); v != "" {
		return v, nil
	}

	data, err := readEnvFile("RELAY_URL")
	if err != nil {
		return "", err
	}
	if v := strings.TrimSpace(data); v != "" {
		return v, nil
	}
	return "", &ConfigurationError{Variable: "RELAY_URL"}
}

// SecretKeys resolves the signing keys starting from the loaded settings.
func (c *Config) SecretKeys() ([]string, error) {
	return ResolveSecretKeys(c.Relay.SecretKeys)
}

// RelayURL resolves the relay endpoint starting from the loaded settings.
func (c *Config) RelayURL() (string, error) {
	return ResolveRelayURL(c.Relay.URL)
}

// readEnvFile returns "" when the file does not exist. Other read failures
// are reported since they usually mean a permissions problem.
func readEnvFile(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(envDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(data), nil
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
