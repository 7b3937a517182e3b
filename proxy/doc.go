// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package proxy implements the credential-isolating proxy core: the
// HTTP server a sandboxed agent's thin wrappers talk to instead of
// running privileged CLIs themselves.
//
// The sandbox never holds credentials. A wrapper re-emits each command
// as POST /cli with {tool, args, resource}; the proxy resolves the
// plugin for the tool, selects a credential for the resource
// (first-match-wins over the configured entries), consults the
// plugin's custom-command table, and finally spawns the real CLI with
// the credential injected into the child environment. Plugins also
// contribute raw HTTP routes — the GitHub plugin mounts a git
// smart-HTTP reverse proxy under /git/ that rewrites the
// Authorization header on the way upstream.
//
// [LoadConfig] reads a JSONC document, refusing any file whose mode
// bits grant group or world access, and produces the immutable
// [Config] the rest of the process runs on: credential entries (at
// rest in mmap-backed secret buffers), timeouts, and the full secret
// set for the masking engine. [Handler] owns request dispatch and the
// audit trail; [Executor] owns subprocess supervision (environment
// overlay, timeout with terminate-then-kill, UTF-8 sanitization of
// captured output). [Server] binds the TCP listener and mounts the
// handler plus plugin routes.
//
// Configuration and the plugin registry are built once at startup and
// never mutated; a restart is the only reload mechanism. The only
// runtime-mutated state is the audit sink and the outbound connection
// pool inside the shared http.Client.
package proxy
