// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/keyward/keyward/lib/masking"
	"github.com/keyward/keyward/plugin"
)

// Health probes every configured token with GET /user, the cheapest
// authenticated REST call. Probes run concurrently; the returned slice
// preserves configuration order. No raw token or full email ever
// appears in a status.
func (p *Plugin) Health(ctx context.Context) []plugin.ProbeStatus {
	statuses := make([]plugin.ProbeStatus, len(p.entries))

	var wg sync.WaitGroup
	for i, entry := range p.entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = p.probeToken(ctx, entry)
		}()
	}
	wg.Wait()

	return statuses
}

func (p *Plugin) probeToken(ctx context.Context, entry plugin.Entry) plugin.ProbeStatus {
	token := entry.Token.String()
	status := plugin.ProbeStatus{
		MaskedSecret: masking.MaskValue(token),
		Resources:    entry.Resources,
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.apiBaseURL+"/user", nil)
	if err != nil {
		status.Error = p.masker.Replace(err.Error())
		status.ErrorKind = "internal"
		return status
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "keyward")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		status.Error = p.masker.Replace(err.Error())
		status.ErrorKind = "unreachable"
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Error = fmt.Sprintf("GitHub API returned status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusUnauthorized {
			status.ErrorKind = "unauthorized"
		} else {
			status.ErrorKind = "upstream_error"
		}
		return status
	}

	var user struct {
		Login string `json:"login"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		status.Error = p.masker.Replace(err.Error())
		status.ErrorKind = "upstream_error"
		return status
	}

	status.Valid = true
	status.Metadata = map[string]any{
		"user":                 p.masker.Replace(user.Login),
		"scopes":               p.masker.Replace(resp.Header.Get("X-OAuth-Scopes")),
		"rate_limit_remaining": p.masker.Replace(resp.Header.Get("X-RateLimit-Remaining")),
	}
	if user.Email != "" {
		status.Metadata["email"] = masking.MaskEmail(user.Email)
	}
	return status
}
