// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Keyward is a local credential-isolating proxy for sandboxed agent
// tooling. Sandbox-side wrappers re-emit CLI invocations as HTTP
// requests; keyward selects the credential for the target resource,
// runs the real CLI with the credential injected into its
// environment, and reverse-proxies git smart-HTTP traffic with
// rewritten authentication. Credentials never enter the sandbox.
//
// Usage:
//
//	keyward --config /etc/keyward/config.jsonc [--port 8766]
//
// The configuration file must be readable only by its owner; startup
// fails otherwise. Startup failures exit non-zero; per-request
// failures never terminate the process.
package main
