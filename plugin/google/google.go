// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package google implements the Google Workspace plugin: gog CLI
// execution with keyring-password or OAuth refresh-token injection,
// and a health probe that asks the gog binary which accounts its
// credentials unlock.
//
// Resources for this plugin are opaque account tags ("default" is
// conventional for the single-account case); the same three pattern
// forms apply as everywhere else.
package google

import (
	"log/slog"
	"time"

	"github.com/keyward/keyward/lib/masking"
	"github.com/keyward/keyward/plugin"
)

// Config holds the collaborators for the plugin.
type Config struct {
	// Entries is the ordered credential list from the configuration.
	Entries []plugin.Entry

	// Masker scrubs secrets from gog diagnostics before they reach a
	// probe status. Required.
	Masker *masking.Masker

	// GogBinary is the gog executable used by the health probe.
	// Defaults to "gog" (resolved via PATH).
	GogBinary string

	// ProbeTimeout bounds each health probe subprocess. Defaults to
	// 30 seconds (the http timeout).
	ProbeTimeout time.Duration

	Logger *slog.Logger
}

// Plugin is the Google Workspace plugin. Immutable after construction.
type Plugin struct {
	entries      []plugin.Entry
	masker       *masking.Masker
	gogBinary    string
	probeTimeout time.Duration
	logger       *slog.Logger
}

// New creates the Google plugin.
func New(config Config) *Plugin {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	masker := config.Masker
	if masker == nil {
		masker = masking.New(nil, TokenPrefixes)
	}
	binary := config.GogBinary
	if binary == "" {
		binary = "gog"
	}
	timeout := config.ProbeTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Plugin{
		entries:      config.Entries,
		masker:       masker,
		gogBinary:    binary,
		probeTimeout: timeout,
		logger:       logger,
	}
}

// Name returns the plugin's configuration key.
func (p *Plugin) Name() string { return "google" }

// Tools lists the CLI binaries this plugin handles.
func (p *Plugin) Tools() []string { return []string{"gog"} }

// TokenPrefixes are the Google OAuth token prefixes the masking
// engine catches in upstream output.
var TokenPrefixes = []string{"ya29."}

// TokenPrefixes implements [plugin.Plugin].
func (p *Plugin) TokenPrefixes() []string {
	return TokenPrefixes
}

// Select walks the credential entries first-match-wins and builds the
// envelope. A keyring entry injects GOG_KEYRING_PASSWORD; a
// refresh-token entry injects the GOG_CLIENT_ID / GOG_CLIENT_SECRET /
// GOG_REFRESH_TOKEN triple. Either form carries GOG_ACCOUNT when the
// entry names one.
func (p *Plugin) Select(resource string) (plugin.Credential, bool) {
	entry, ok := plugin.SelectEntry(p.entries, resource)
	if !ok {
		return plugin.Credential{}, false
	}

	env := make(map[string]string, 4)
	credential := plugin.Credential{Account: entry.Account}
	switch {
	case entry.KeyringPassword != nil:
		password := entry.KeyringPassword.String()
		env["GOG_KEYRING_PASSWORD"] = password
		credential.Secret = password
	case entry.RefreshToken != nil && entry.ClientSecret != nil:
		refreshToken := entry.RefreshToken.String()
		env["GOG_CLIENT_ID"] = entry.ClientID
		env["GOG_CLIENT_SECRET"] = entry.ClientSecret.String()
		env["GOG_REFRESH_TOKEN"] = refreshToken
		credential.Secret = refreshToken
	default:
		return plugin.Credential{}, false
	}
	if entry.Account != "" {
		env["GOG_ACCOUNT"] = entry.Account
	}
	credential.Env = env
	return credential, true
}

// Commands returns no custom commands; every gog invocation runs as a
// subprocess.
func (p *Plugin) Commands() map[string]plugin.CommandFunc {
	return nil
}

// Routes returns no plugin routes.
func (p *Plugin) Routes() []plugin.Route {
	return nil
}

var _ plugin.Plugin = (*Plugin)(nil)
