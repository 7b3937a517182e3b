// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"net/http"
	"sync"

	"github.com/keyward/keyward/plugin"
)

// PluginStatus is one plugin's slice of the /auth/status aggregate.
// Credentials preserve configuration order.
type PluginStatus struct {
	Plugin      string               `json:"plugin"`
	Credentials []plugin.ProbeStatus `json:"credentials"`
}

// HandleAuthStatus aggregates every plugin's credential probes. Probes
// run concurrently, each bounded by the http timeout; failures are
// reported inside the body, never via the HTTP status — this endpoint
// is 200 whenever the proxy itself is alive.
func (h *Handler) HandleAuthStatus(w http.ResponseWriter, r *http.Request) {
	plugins := h.registry.All()
	statuses := make([]PluginStatus, len(plugins))

	var wg sync.WaitGroup
	for i, p := range plugins {
		wg.Add(1)
		go func() {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(r.Context(), h.timeout)
			defer cancel()
			statuses[i] = PluginStatus{
				Plugin:      p.Name(),
				Credentials: p.Health(probeCtx),
			}
		}()
	}
	wg.Wait()

	writeJSON(w, h.logger, statuses)
}
