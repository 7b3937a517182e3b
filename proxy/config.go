// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/keyward/keyward/lib/secret"
	"github.com/keyward/keyward/plugin"
)

// Defaults applied when the configuration omits the field.
const (
	DefaultPort        = 8766
	DefaultCLITimeout  = 60 * time.Second
	DefaultHTTPTimeout = 30 * time.Second
)

// Startup-fatal configuration error kinds.
const (
	KindConfigPermissions   = "CONFIG_PERMISSIONS"
	KindConfigUnknownPlugin = "CONFIG_UNKNOWN_PLUGIN"
	KindConfigMalformed     = "CONFIG_MALFORMED"
)

// ConfigError is a startup-fatal configuration failure with a stable
// kind for operators to match on.
type ConfigError struct {
	Kind    string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Kind + ": " + e.Message
}

func configErrorf(kind, format string, args ...any) *ConfigError {
	return &ConfigError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// knownPlugins are the valid keys of the "plugins" object. The set is
// fixed in code; there is no dynamic plugin loading.
var knownPlugins = map[string]bool{
	"github": true,
	"google": true,
}

// Config is the immutable runtime configuration. Secret fields live in
// mmap-backed buffers owned by the entries; Close releases them.
type Config struct {
	Port        int
	CLITimeout  time.Duration
	HTTPTimeout time.Duration

	// AuditDB is the optional path of the SQLite audit store. Empty
	// disables persistence (auditing is then slog-only).
	AuditDB string

	// Plugins maps plugin name to its ordered credential entries.
	// Order is significant: the selector walks it first-match-wins.
	Plugins map[string][]plugin.Entry

	// Secrets is every secret value in the configuration, collected
	// once at load for the masking engine.
	Secrets []string
}

// Close releases the secret buffers held by all entries.
func (c *Config) Close() {
	for _, entries := range c.Plugins {
		for _, entry := range entries {
			for _, buffer := range []*secret.Buffer{entry.Token, entry.KeyringPassword, entry.ClientSecret, entry.RefreshToken} {
				if buffer != nil {
					buffer.Close()
				}
			}
		}
	}
}

// Raw wire shapes for the JSONC document.
type rawConfig struct {
	Port     *int                       `json:"port"`
	Timeouts *rawTimeouts               `json:"timeouts"`
	AuditDB  string                     `json:"audit_db"`
	Plugins  map[string]rawPluginConfig `json:"plugins"`
}

type rawTimeouts struct {
	CLI  *int `json:"cli"`
	HTTP *int `json:"http"`
}

type rawPluginConfig struct {
	Credentials []rawCredential `json:"credentials"`
}

type rawCredential struct {
	Token           string   `json:"token"`
	KeyringPassword string   `json:"keyring_password"`
	ClientID        string   `json:"client_id"`
	ClientSecret    string   `json:"client_secret"`
	RefreshToken    string   `json:"refresh_token"`
	Account         string   `json:"account"`
	Resources       []string `json:"resources"`
}

// LoadConfig reads, permission-checks, parses, and validates the
// configuration file. The file must be readable by its owner only:
// any group or world mode bit is a CONFIG_PERMISSIONS failure, checked
// before a single byte is read.
func LoadConfig(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, configErrorf(KindConfigMalformed, "config file %s: %v", path, err)
	}
	if mode := info.Mode().Perm(); mode&(fs.FileMode(0o077)) != 0 {
		return nil, configErrorf(KindConfigPermissions,
			"config file %s has too-open permissions (%#o); run: chmod 600 %s", path, mode, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrorf(KindConfigMalformed, "reading %s: %v", path, err)
	}
	defer secret.Zero(data)

	var raw rawConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, configErrorf(KindConfigMalformed, "invalid JSONC in %s: %v", path, err)
	}

	config := &Config{
		Port:        DefaultPort,
		CLITimeout:  DefaultCLITimeout,
		HTTPTimeout: DefaultHTTPTimeout,
		AuditDB:     raw.AuditDB,
		Plugins:     make(map[string][]plugin.Entry, len(raw.Plugins)),
	}

	if raw.Port != nil {
		if *raw.Port <= 0 || *raw.Port > 65535 {
			return nil, configErrorf(KindConfigMalformed, "port %d out of range", *raw.Port)
		}
		config.Port = *raw.Port
	}
	if raw.Timeouts != nil {
		if raw.Timeouts.CLI != nil {
			if *raw.Timeouts.CLI <= 0 {
				return nil, configErrorf(KindConfigMalformed, "timeouts.cli must be positive")
			}
			config.CLITimeout = time.Duration(*raw.Timeouts.CLI) * time.Second
		}
		if raw.Timeouts.HTTP != nil {
			if *raw.Timeouts.HTTP <= 0 {
				return nil, configErrorf(KindConfigMalformed, "timeouts.http must be positive")
			}
			config.HTTPTimeout = time.Duration(*raw.Timeouts.HTTP) * time.Second
		}
	}

	for name, pluginRaw := range raw.Plugins {
		if !knownPlugins[name] {
			config.Close()
			return nil, configErrorf(KindConfigUnknownPlugin, "unknown plugin %q in config", name)
		}
		entries, secrets, err := buildEntries(name, pluginRaw.Credentials)
		if err != nil {
			config.Close()
			return nil, err
		}
		config.Plugins[name] = entries
		config.Secrets = append(config.Secrets, secrets...)
	}

	return config, nil
}

// buildEntries validates one plugin's credential list and moves its
// secrets into protected buffers.
func buildEntries(pluginName string, raws []rawCredential) ([]plugin.Entry, []string, error) {
	entries := make([]plugin.Entry, 0, len(raws))
	var secrets []string
	var created []*secret.Buffer

	fail := func(err error) ([]plugin.Entry, []string, error) {
		for _, buffer := range created {
			buffer.Close()
		}
		return nil, nil, err
	}

	wrap := func(value string) (*secret.Buffer, error) {
		if value == "" {
			return nil, nil
		}
		buffer, err := secret.FromString(value)
		if err != nil {
			return nil, configErrorf(KindConfigMalformed, "plugin %q: storing secret: %v", pluginName, err)
		}
		created = append(created, buffer)
		secrets = append(secrets, value)
		return buffer, nil
	}

	for i, raw := range raws {
		if len(raw.Resources) == 0 {
			return fail(configErrorf(KindConfigMalformed,
				"plugin %q credential %d: 'resources' must be a non-empty array", pluginName, i))
		}
		for _, pattern := range raw.Resources {
			if err := plugin.ValidatePattern(pattern); err != nil {
				return fail(configErrorf(KindConfigMalformed,
					"plugin %q credential %d: %v", pluginName, i, err))
			}
		}

		switch pluginName {
		case "github":
			if raw.Token == "" {
				return fail(configErrorf(KindConfigMalformed,
					"plugin %q credential %d: 'token' is required", pluginName, i))
			}
		case "google":
			hasKeyring := raw.KeyringPassword != ""
			hasTriple := raw.ClientID != "" && raw.ClientSecret != "" && raw.RefreshToken != ""
			if !hasKeyring && !hasTriple {
				return fail(configErrorf(KindConfigMalformed,
					"plugin %q credential %d: 'keyring_password' or the client_id/client_secret/refresh_token triple is required", pluginName, i))
			}
		}

		entry := plugin.Entry{
			ClientID:  raw.ClientID,
			Account:   raw.Account,
			Resources: raw.Resources,
		}
		var err error
		if entry.Token, err = wrap(raw.Token); err != nil {
			return fail(err)
		}
		if entry.KeyringPassword, err = wrap(raw.KeyringPassword); err != nil {
			return fail(err)
		}
		if entry.ClientSecret, err = wrap(raw.ClientSecret); err != nil {
			return fail(err)
		}
		if entry.RefreshToken, err = wrap(raw.RefreshToken); err != nil {
			return fail(err)
		}
		entries = append(entries, entry)
	}

	return entries, secrets, nil
}
