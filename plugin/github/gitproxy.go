// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/keyward/keyward/audit"
	"github.com/keyward/keyward/proxy"
)

// Inbound headers the smart protocol cares about. Everything else —
// Authorization above all — is dropped.
var forwardedRequestHeaders = []string{
	"Content-Type",
	"Accept",
	"User-Agent",
	"Content-Encoding",
	"Git-Protocol",
}

// Response headers mirrored back to the caller.
var forwardedResponseHeaders = []string{
	"Content-Type",
	"Content-Encoding",
	"Cache-Control",
}

// handleGit reverse-proxies the three smart-protocol endpoints:
//
//	GET  /git/{owner}/{repo}.git/info/refs?service=git-upload-pack|git-receive-pack
//	POST /git/{owner}/{repo}.git/git-upload-pack
//	POST /git/{owner}/{repo}.git/git-receive-pack
//
// Bodies stream in both directions; a fetch or push never buffers a
// full pack in proxy memory. Every other sub-path (LFS included) is
// rejected.
func (p *Plugin) handleGit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	owner, repo, subpath, ok := splitGitPath(r.URL.Path)
	if !ok {
		proxy.WriteError(w, http.StatusBadRequest, proxy.KindBadRequest,
			"expected /git/{owner}/{repo}.git/...")
		return
	}
	resource := owner + "/" + repo

	status := p.proxyGit(w, r, owner, repo, subpath, resource)

	p.logger.Info("git proxy request",
		"resource", resource,
		"subpath", subpath,
		"method", r.Method,
		"status", status,
		"duration", time.Since(start),
	)
	if p.audit != nil {
		p.audit.Record(r.Context(), audit.Entry{
			Time:       start,
			Kind:       "git",
			Tool:       "git",
			Resource:   resource,
			Argv0:      subpath,
			Status:     status,
			DurationMS: time.Since(start).Milliseconds(),
		})
	}
}

// proxyGit does the actual forwarding and returns the status sent to
// the caller.
func (p *Plugin) proxyGit(w http.ResponseWriter, r *http.Request, owner, repo, subpath, resource string) int {
	switch {
	case subpath == "info/refs" && r.Method == http.MethodGet:
		if service := r.URL.Query().Get("service"); service != "" &&
			service != "git-upload-pack" && service != "git-receive-pack" {
			proxy.WriteError(w, http.StatusBadRequest, proxy.KindNotSupported,
				"unsupported service: "+service)
			return http.StatusBadRequest
		}
	case subpath == "git-upload-pack" && r.Method == http.MethodPost:
	case subpath == "git-receive-pack" && r.Method == http.MethodPost:
	default:
		proxy.WriteError(w, http.StatusBadRequest, proxy.KindNotSupported,
			"unsupported git endpoint: "+subpath)
		return http.StatusBadRequest
	}

	credential, ok := p.Select(resource)
	if !ok {
		proxy.WriteError(w, http.StatusForbidden, proxy.KindNoCredential,
			"no credential for git on "+resource)
		return http.StatusForbidden
	}

	upstreamURL := p.gitBaseURL + "/" + owner + "/" + repo + ".git/" + subpath
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	// The request context carries caller disconnect; no additional
	// deadline here — pack transfers legitimately outlive the http
	// timeout, and the transport's dial/header timeouts bound the
	// connection setup.
	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, r.Body)
	if err != nil {
		proxy.WriteError(w, http.StatusBadGateway, proxy.KindUpstreamUnavailable,
			p.masker.Replace(err.Error()))
		return http.StatusBadGateway
	}
	for _, name := range forwardedRequestHeaders {
		if value := r.Header.Get(name); value != "" {
			upstreamReq.Header.Set(name, value)
		}
	}
	auth := base64.StdEncoding.EncodeToString([]byte(basicAuthUser + ":" + credential.Secret))
	upstreamReq.Header.Set("Authorization", "Basic "+auth)

	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		proxy.WriteError(w, http.StatusBadGateway, proxy.KindUpstreamUnavailable,
			"upstream request failed: "+p.masker.Replace(err.Error()))
		return http.StatusBadGateway
	}
	defer resp.Body.Close()

	for _, name := range forwardedResponseHeaders {
		if value := resp.Header.Get(name); value != "" {
			w.Header().Set(name, value)
		}
	}
	w.WriteHeader(resp.StatusCode)

	// Stream with per-chunk flushing so fetch progress reaches the
	// client while the pack is still being generated upstream.
	flusher, _ := w.(http.Flusher)
	buffer := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			if _, writeErr := w.Write(buffer[:n]); writeErr != nil {
				// Caller went away; the deferred close releases the
				// upstream connection.
				return resp.StatusCode
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			return resp.StatusCode
		}
	}
}

// splitGitPath parses /git/{owner}/{repo}.git/{subpath}.
func splitGitPath(path string) (owner, repo, subpath string, ok bool) {
	rest, found := strings.CutPrefix(path, "/git/")
	if !found {
		return "", "", "", false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 3 || parts[0] == "" {
		return "", "", "", false
	}
	repo, found = strings.CutSuffix(parts[1], ".git")
	if !found || repo == "" {
		return "", "", "", false
	}
	return parts[0], repo, parts[2], true
}
