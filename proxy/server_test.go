// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/keyward/keyward/plugin"
)

func TestServer_ServesCoreAndPluginRoutes(t *testing.T) {
	pluginRoute := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "plugin route")
	})
	p := &echoPlugin{routes: []plugin.Route{{Pattern: "/git/", Handler: pluginRoute}}}

	handler, _ := newTestHandler(t, p)
	server, err := NewServer(ServerConfig{
		Addr:    "127.0.0.1:0",
		Handler: handler,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	base := "http://" + server.Addr()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "ok") {
		t.Errorf("GET /health = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(base + "/git/owner/repo.git/info/refs")
	if err != nil {
		t.Fatalf("GET plugin route: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "plugin route" {
		t.Errorf("plugin route body = %q", body)
	}

	resp, err = http.Post(base+"/cli", "application/json",
		strings.NewReader(`{"tool": "echo", "args": ["hi"], "resource": "a/b"}`))
	if err != nil {
		t.Fatalf("POST /cli: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "hi") {
		t.Errorf("POST /cli = %d %q", resp.StatusCode, body)
	}
}

func TestServer_RequiresAddrAndHandler(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("expected error for missing addr")
	}
	if _, err := NewServer(ServerConfig{Addr: "127.0.0.1:0"}); err == nil {
		t.Error("expected error for missing handler")
	}
}
