// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfig writes content to a temp file with the given mode and
// returns its path.
func writeConfig(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.jsonc")
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	// WriteFile's mode is subject to umask; force it.
	if err := os.Chmod(path, mode); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	return path
}

func configKind(t *testing.T, err error) string {
	t.Helper()
	var configErr *ConfigError
	if !errors.As(err, &configErr) {
		t.Fatalf("error %v is not a ConfigError", err)
	}
	return configErr.Kind
}

const minimalConfig = `{
	// keyward test config
	"plugins": {
		"github": {
			"credentials": [
				{"token": "ghp_tok1", "resources": ["acme/*"]},
				{"token": "ghp_tok2", "resources": ["*"]}
			]
		}
	}
}`

// --- permissions ---

func TestLoadConfig_RejectsGroupReadable(t *testing.T) {
	path := writeConfig(t, minimalConfig, 0o640)
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for 0640 config, got nil")
	}
	if kind := configKind(t, err); kind != KindConfigPermissions {
		t.Errorf("kind = %q, want %q", kind, KindConfigPermissions)
	}
}

func TestLoadConfig_RejectsWorldReadable(t *testing.T) {
	path := writeConfig(t, minimalConfig, 0o604)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for 0604 config, got nil")
	}
}

func TestLoadConfig_AcceptsOwnerOnly(t *testing.T) {
	path := writeConfig(t, minimalConfig, 0o600)
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	defer config.Close()

	if config.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", config.Port, DefaultPort)
	}
	if config.CLITimeout != DefaultCLITimeout {
		t.Errorf("CLITimeout = %v, want %v", config.CLITimeout, DefaultCLITimeout)
	}
	entries := config.Plugins["github"]
	if len(entries) != 2 {
		t.Fatalf("got %d github entries, want 2", len(entries))
	}
	if got := entries[0].Token.String(); got != "ghp_tok1" {
		t.Errorf("entry 0 token = %q, want ghp_tok1", got)
	}
	if len(config.Secrets) != 2 {
		t.Errorf("Secrets = %v, want both tokens", len(config.Secrets))
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.jsonc"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

// --- schema ---

func TestLoadConfig_UnknownPlugin(t *testing.T) {
	path := writeConfig(t, `{"plugins": {"gitlab": {"credentials": []}}}`, 0o600)
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for unknown plugin")
	}
	if kind := configKind(t, err); kind != KindConfigUnknownPlugin {
		t.Errorf("kind = %q, want %q", kind, KindConfigUnknownPlugin)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeConfig(t, `{"plugins": `, 0o600)
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for truncated JSON")
	}
	if kind := configKind(t, err); kind != KindConfigMalformed {
		t.Errorf("kind = %q, want %q", kind, KindConfigMalformed)
	}
}

func TestLoadConfig_CommentsAndTrailingCommas(t *testing.T) {
	content := `{
		// port override
		"port": 9999,
		"timeouts": {"cli": 2, "http": 5,},
		"plugins": {
			"github": {
				"credentials": [
					{"token": "ghp_x", "resources": ["*"],}, // default
				],
			},
		},
	}`
	path := writeConfig(t, content, 0o600)
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	defer config.Close()

	if config.Port != 9999 {
		t.Errorf("Port = %d, want 9999", config.Port)
	}
	if config.CLITimeout != 2*time.Second {
		t.Errorf("CLITimeout = %v, want 2s", config.CLITimeout)
	}
	if config.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout = %v, want 5s", config.HTTPTimeout)
	}
}

func TestLoadConfig_NonPositiveTimeout(t *testing.T) {
	path := writeConfig(t, `{
		"timeouts": {"cli": 0},
		"plugins": {}
	}`, 0o600)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for zero cli timeout")
	}
}

func TestLoadConfig_EmptyResources(t *testing.T) {
	path := writeConfig(t, `{"plugins": {"github": {"credentials": [
		{"token": "ghp_x", "resources": []}
	]}}}`, 0o600)
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for empty resources")
	}
	if kind := configKind(t, err); kind != KindConfigMalformed {
		t.Errorf("kind = %q, want %q", kind, KindConfigMalformed)
	}
}

func TestLoadConfig_BadPattern(t *testing.T) {
	path := writeConfig(t, `{"plugins": {"github": {"credentials": [
		{"token": "ghp_x", "resources": ["acme/**"]}
	]}}}`, 0o600)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for bad pattern")
	}
}

func TestLoadConfig_GitHubRequiresToken(t *testing.T) {
	path := writeConfig(t, `{"plugins": {"github": {"credentials": [
		{"resources": ["*"]}
	]}}}`, 0o600)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestLoadConfig_GoogleSecretForms(t *testing.T) {
	// Keyring form works.
	path := writeConfig(t, `{"plugins": {"google": {"credentials": [
		{"keyring_password": "pw", "account": "me@example.com", "resources": ["default"]}
	]}}}`, 0o600)
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("keyring form: %v", err)
	}
	config.Close()

	// Refresh-token triple works.
	path = writeConfig(t, `{"plugins": {"google": {"credentials": [
		{"client_id": "id", "client_secret": "cs", "refresh_token": "rt", "resources": ["*"]}
	]}}}`, 0o600)
	config, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("triple form: %v", err)
	}
	config.Close()

	// A partial triple does not.
	path = writeConfig(t, `{"plugins": {"google": {"credentials": [
		{"client_id": "id", "resources": ["*"]}
	]}}}`, 0o600)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for partial triple")
	}
}
