// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package github implements the GitHub plugin: gh CLI execution with
// token injection, a git smart-HTTP reverse proxy with credential
// rewriting, custom commands that fill gh's gaps (discussions,
// sub-issues, partial body edits), and a per-token health probe.
package github

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/keyward/keyward/audit"
	"github.com/keyward/keyward/lib/masking"
	"github.com/keyward/keyward/plugin"
)

// basicAuthUser is the username paired with a token in the Basic
// scheme for git smart-HTTP, per GitHub's token-auth convention.
const basicAuthUser = "x-access-token"

// Config holds the collaborators and upstream endpoints for the
// plugin. Zero-value URL fields get the public GitHub endpoints.
type Config struct {
	// Entries is the ordered credential list from the configuration.
	Entries []plugin.Entry

	// HTTPClient is the shared outbound client (connection pool).
	// Required.
	HTTPClient *http.Client

	// Masker scrubs secrets from upstream diagnostics. Required.
	Masker *masking.Masker

	// Audit is the optional persistent audit recorder for git proxy
	// requests.
	Audit audit.Recorder

	// HTTPTimeout bounds non-streaming outbound requests (GraphQL,
	// REST, health probes).
	HTTPTimeout time.Duration

	// APIBaseURL, GraphQLURL, GitBaseURL override the upstream
	// endpoints, for tests.
	APIBaseURL string
	GraphQLURL string
	GitBaseURL string

	Logger *slog.Logger
}

// Plugin is the GitHub plugin. Immutable after construction.
type Plugin struct {
	entries     []plugin.Entry
	client      *http.Client
	masker      *masking.Masker
	audit       audit.Recorder
	httpTimeout time.Duration
	apiBaseURL  string
	graphqlURL  string
	gitBaseURL  string
	logger      *slog.Logger
	commands    map[string]plugin.CommandFunc
}

// New creates the GitHub plugin.
func New(config Config) *Plugin {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = "https://api.github.com"
	}
	graphqlURL := config.GraphQLURL
	if graphqlURL == "" {
		graphqlURL = apiBaseURL + "/graphql"
	}
	gitBaseURL := config.GitBaseURL
	if gitBaseURL == "" {
		gitBaseURL = "https://github.com"
	}
	timeout := config.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	p := &Plugin{
		entries:     config.Entries,
		client:      config.HTTPClient,
		masker:      config.Masker,
		audit:       config.Audit,
		httpTimeout: timeout,
		apiBaseURL:  apiBaseURL,
		graphqlURL:  graphqlURL,
		gitBaseURL:  gitBaseURL,
		logger:      logger,
	}
	p.commands = map[string]plugin.CommandFunc{
		"discussion": p.discussionCommand,
		"issue":      p.issueCommand,
		"pr":         p.prCommand,
		"sub-issue":  p.subIssueCommand,
	}
	return p
}

// Name returns the plugin's configuration key.
func (p *Plugin) Name() string { return "github" }

// Tools lists the CLI binaries this plugin handles.
func (p *Plugin) Tools() []string { return []string{"gh"} }

// TokenPrefixes are the GitHub token prefixes the masking engine
// catches in upstream output. Package-level so the masker can be
// built before the plugin.
var TokenPrefixes = []string{"ghp_", "gho_", "ghu_", "ghs_", "github_pat_"}

// TokenPrefixes implements [plugin.Plugin].
func (p *Plugin) TokenPrefixes() []string {
	return TokenPrefixes
}

// Select walks the credential entries first-match-wins and builds the
// envelope: GH_TOKEN and GH_HOST for the gh CLI, plus the raw token
// for Basic-auth construction on the git proxy route.
func (p *Plugin) Select(resource string) (plugin.Credential, bool) {
	entry, ok := plugin.SelectEntry(p.entries, resource)
	if !ok || entry.Token == nil {
		return plugin.Credential{}, false
	}
	token := entry.Token.String()
	return plugin.Credential{
		Env: map[string]string{
			"GH_TOKEN": token,
			"GH_HOST":  "github.com",
		},
		Secret:  token,
		Account: entry.Account,
	}, true
}

// Commands returns the custom-command table.
func (p *Plugin) Commands() map[string]plugin.CommandFunc {
	return p.commands
}

// Routes mounts the git smart-HTTP reverse proxy.
func (p *Plugin) Routes() []plugin.Route {
	return []plugin.Route{
		{Pattern: "/git/", Handler: http.HandlerFunc(p.handleGit)},
	}
}

var _ plugin.Plugin = (*Plugin)(nil)
