package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// useEnvDir points envDir at a temporary directory for one test. Tests
// calling it must not run in parallel.
func useEnvDir(t *testing.T, files map[string]string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	prev := envDir
	envDir = dir
	t.Cleanup(func() { envDir = prev })
}

func TestResolveSecretKeys_Order(t *testing.T) {
	tests := []struct {
		name     string
		explicit []string
		keysEnv  string
		keyEnv   string
		file     string
		want     []string
	}{
		{
			name:     "explicit wins",
			explicit: []string{"explicit"},
			keysEnv:  "multi-a,multi-b",
			keyEnv:   "single",
			file:     "from-file",
			want:     []string{"explicit"},
		},
		{
			name:    "comma separated env",
			keysEnv: "multi-a, multi-b",
			keyEnv:  "single",
			want:    []string{"multi-a", "multi-b"},
		},
		{
			name:   "single env",
			keyEnv: "single",
			file:   "from-file",
			want:   []string{"single"},
		},
		{
			name: "file with trailing newline",
			file: "from-file\n",
			want: []string{"from-file"},
		},
		{
			name: "file with one key per line",
			file: "current\nprevious\n",
			want: []string{"current", "previous"},
		},
		{
			name:     "blank explicit falls through",
			explicit: []string{"  ", ""},
			keyEnv:   "single",
			want:     []string{"single"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RELAY_SECRET_KEYS", tt.keysEnv)
			t.Setenv("RELAY_SECRET_KEY", tt.keyEnv)
			files := map[string]string{}
			if tt.file != "" {
				files["RELAY_SECRET_KEY"] = tt.file
			}
			useEnvDir(t, files)

			got, err := ResolveSecretKeys(tt.explicit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ResolveSecretKeys(): got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveSecretKeys_Missing(t *testing.T) {
	t.Setenv("RELAY_SECRET_KEYS", "")
	t.Setenv("RELAY_SECRET_KEY", "")
	useEnvDir(t, map[string]string{"RELAY_SECRET_KEY": "   \n"})

	_, err := ResolveSecretKeys(nil)

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Variable != "RELAY_SECRET_KEY" {
		t.Errorf("Variable: got %q, want RELAY_SECRET_KEY", cfgErr.Variable)
	}
	if cfgErr.Error() != "configuration error: RELAY_SECRET_KEY is not set" {
		t.Errorf("Error(): got %q", cfgErr.Error())
	}
}

func TestResolveSecretKeys_UnreadableFile(t *testing.T) {
	t.Setenv("RELAY_SECRET_KEYS", "")
	t.Setenv("RELAY_SECRET_KEY", "")
	useEnvDir(t, nil)
	// A directory where a file is expected cannot be read as one.
	if err := os.Mkdir(filepath.Join(envDir, "RELAY_SECRET_KEY"), 0700); err != nil {
		t.Fatal(err)
	}

	_, err := ResolveSecretKeys(nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		t.Errorf("read failure should not be reported as a missing setting: %v", err)
	}
}

func TestResolveRelayURL(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		env      string
		file     string
		want     string
	}{
		{name: "explicit", explicit: "https://a.example.com/", env: "https://b.example.com/", want: "https://a.example.com/"},
		{name: "env", env: "https://b.example.com/", file: "https://c.example.com/", want: "https://b.example.com/"},
		{name: "file", file: "https://c.example.com/\n", want: "https://c.example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RELAY_URL", tt.env)
			files := map[string]string{}
			if tt.file != "" {
				files["RELAY_URL"] = tt.file
			}
			useEnvDir(t, files)

			got, err := ResolveRelayURL(tt.explicit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveRelayURL(): got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveRelayURL_Missing(t *testing.T) {
	t.Setenv("RELAY_URL", "")
	useEnvDir(t, nil)

	_, err := ResolveRelayURL("")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Variable != "RELAY_URL" {
		t.Fatalf("expected ConfigurationError for RELAY_URL, got %v", err)
	}
}

func TestConfigSecretKeysUsesLoadedSettings(t *testing.T) {
	t.Setenv("RELAY_SECRET_KEYS", "")
	t.Setenv("RELAY_SECRET_KEY", "")
	useEnvDir(t, nil)

	cfg := &Config{Relay: RelayConfig{SecretKeys: []string{"yaml-key"}, URL: "https://relay.example.com/"}}

	keys, err := cfg.SecretKeys()
	if err != nil || !reflect.DeepEqual(keys, []string{"yaml-key"}) {
		t.Errorf("SecretKeys(): got %v, %v", keys, err)
	}
	url, err := cfg.RelayURL()
	if err != nil || url != "https://relay.example.com/" {
		t.Errorf("RelayURL(): got %q, %v", url, err)
	}
}
