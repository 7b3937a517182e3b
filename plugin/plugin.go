// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package plugin defines the contract between the proxy core and the
// tool plugins it dispatches to.
//
// A plugin owns a disjoint set of CLI tool names. For each request the
// router resolves the plugin by tool, asks it to select a credential
// for the request's resource (first-match-wins over the configured
// entries), consults the plugin's custom-command table, and only then
// falls back to subprocess execution. Plugins may also contribute raw
// HTTP routes (the GitHub plugin uses this for the git smart-HTTP
// reverse proxy) and a health probe for the /auth/status aggregator.
//
// Credential envelopes built by Select carry plaintext only for the
// lifetime of one request; the at-rest copies stay in [secret.Buffer]
// regions owned by the configuration.
package plugin

import (
	"context"
	"net/http"

	"github.com/keyward/keyward/lib/secret"
)

// Entry is one configured credential for a plugin. Which secret fields
// are populated depends on the plugin: GitHub entries carry Token;
// Google entries carry either KeyringPassword or the OAuth
// refresh-token triple. Resources is the ordered pattern list the
// selector walks.
type Entry struct {
	Token           *secret.Buffer
	KeyringPassword *secret.Buffer
	ClientID        string
	ClientSecret    *secret.Buffer
	RefreshToken    *secret.Buffer

	// Account is optional display metadata (for Google, the account
	// the credential unlocks). Not secret, but masked in status output
	// when it is an email address.
	Account string

	// Resources is the ordered list of patterns this entry is scoped
	// to. Never empty in a loaded configuration.
	Resources []string
}

// Credential is the envelope produced by selection: the environment
// overlay for subprocess execution plus the raw secret for
// authorization-header construction on plugin HTTP routes. It must
// never be logged, serialized into a response, or stored.
type Credential struct {
	Env     map[string]string
	Secret  string
	Account string
}

// Result is the caller-visible outcome of a dispatched command,
// whether it ran as a subprocess or was intercepted by a custom
// command handler.
type Result struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Outcome is the return variant of a custom command handler: either
// Declined (fall through to subprocess execution) or Completed with a
// final result.
type Outcome struct {
	declined bool
	result   Result
}

// Declined signals fallthrough to the subprocess executor.
func Declined() Outcome {
	return Outcome{declined: true}
}

// Completed wraps a final result; the router serializes it verbatim
// and no subprocess is spawned.
func Completed(result Result) Outcome {
	return Outcome{result: result}
}

// IsDeclined reports whether the handler declined the command.
func (o Outcome) IsDeclined() bool {
	return o.declined
}

// Result returns the completed result. Only meaningful when
// IsDeclined is false.
func (o Outcome) Result() Result {
	return o.result
}

// CommandFunc handles one custom command. args excludes the command
// name itself (args[1:] of the original request). A returned error is
// a transport-level failure (upstream unreachable); command-level
// failures are expressed as a Completed result with a non-zero exit
// code.
type CommandFunc func(ctx context.Context, args []string, resource string, credential Credential) (Outcome, error)

// Route is a plugin-contributed HTTP route, registered on the proxy's
// mux verbatim. Pattern uses net/http mux syntax ("/git/").
type Route struct {
	Pattern string
	Handler http.Handler
}

// ProbeStatus is one credential's health report. Metadata values are
// already masked by the plugin; the aggregator serializes the struct
// as-is.
type ProbeStatus struct {
	Valid        bool           `json:"valid"`
	MaskedSecret string         `json:"masked_secret"`
	Resources    []string       `json:"resources"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Error        string         `json:"error,omitempty"`
	ErrorKind    string         `json:"error_kind,omitempty"`
}

// Plugin is the capability set of one built-in tool plugin. All
// methods are safe for concurrent use; plugins are immutable after
// construction.
type Plugin interface {
	// Name is the plugin's configuration key ("github", "google").
	Name() string

	// Tools lists the CLI binaries this plugin handles. Tool sets are
	// pairwise disjoint across registered plugins.
	Tools() []string

	// Select walks the configured entries in order and returns the
	// envelope derived from the first entry with a matching resource
	// pattern. ok is false when nothing matches.
	Select(resource string) (credential Credential, ok bool)

	// Commands returns the custom-command table keyed by args[0].
	Commands() map[string]CommandFunc

	// Routes returns plugin-contributed HTTP routes.
	Routes() []Route

	// Health probes every configured credential. Implementations run
	// probes concurrently and preserve configuration order.
	Health(ctx context.Context) []ProbeStatus

	// TokenPrefixes lists plaintext token prefixes the masking engine
	// should catch in upstream error output.
	TokenPrefixes() []string
}

// SelectEntry is the shared first-match-wins walk used by plugin
// selectors: entries in configuration order, each entry's patterns in
// order, first match returns.
func SelectEntry(entries []Entry, resource string) (Entry, bool) {
	for _, entry := range entries {
		for _, pattern := range entry.Resources {
			if MatchResource(pattern, resource) {
				return entry, true
			}
		}
	}
	return Entry{}, false
}
