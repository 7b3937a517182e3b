// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package google

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/keyward/keyward/lib/masking"
	"github.com/keyward/keyward/plugin"
)

// Health probes every configured credential by running "gog auth
// list" with that entry's environment injected. A zero exit means the
// credential unlocks the keyring; the printed accounts are reported
// masked. Probes run concurrently; the slice preserves configuration
// order.
func (p *Plugin) Health(ctx context.Context) []plugin.ProbeStatus {
	statuses := make([]plugin.ProbeStatus, len(p.entries))

	var wg sync.WaitGroup
	for i, entry := range p.entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = p.probeEntry(ctx, entry)
		}()
	}
	wg.Wait()

	return statuses
}

func (p *Plugin) probeEntry(ctx context.Context, entry plugin.Entry) plugin.ProbeStatus {
	status := plugin.ProbeStatus{Resources: entry.Resources}

	credential, ok := p.selectFromEntry(entry)
	if !ok {
		status.Error = "entry has no usable secret"
		status.ErrorKind = "internal"
		return status
	}
	status.MaskedSecret = masking.MaskValue(credential.Secret)

	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, p.gogBinary, "auth", "list")
	env := os.Environ()
	for key, value := range credential.Env {
		env = append(env, key+"="+value)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if probeCtx.Err() != nil {
			status.Error = "probe timed out"
			status.ErrorKind = "timeout"
		} else {
			// gog's diagnostics can echo the credential it was
			// given; mask before the message enters the status body.
			status.Error = p.masker.Replace(firstLine(stderr.String()))
			if status.Error == "" {
				status.Error = p.masker.Replace(err.Error())
			}
			status.ErrorKind = "unauthorized"
		}
		return status
	}

	status.Valid = true
	status.Metadata = map[string]any{
		"accounts": maskAccounts(stdout.String()),
	}
	if entry.Account != "" {
		status.Metadata["account"] = masking.MaskEmail(entry.Account)
	}
	return status
}

// selectFromEntry builds an envelope for one specific entry,
// bypassing pattern matching. Used by the probe, which iterates all
// entries regardless of scope.
func (p *Plugin) selectFromEntry(entry plugin.Entry) (plugin.Credential, bool) {
	scoped := Plugin{entries: []plugin.Entry{withGlobalScope(entry)}}
	return scoped.Select("default")
}

// withGlobalScope returns a copy of entry that matches any resource.
func withGlobalScope(entry plugin.Entry) plugin.Entry {
	entry.Resources = []string{"*"}
	return entry
}

// maskAccounts masks each email in gog's newline-separated account
// listing.
func maskAccounts(output string) []string {
	var accounts []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		accounts = append(accounts, masking.MaskEmail(line))
	}
	return accounts
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
