// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/keyward/keyward/audit"
	"github.com/keyward/keyward/lib/masking"
	"github.com/keyward/keyward/plugin"
	"github.com/keyward/keyward/plugin/github"
	"github.com/keyward/keyward/plugin/google"
	"github.com/keyward/keyward/proxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		portFlag   int
	)
	pflag.StringVar(&configPath, "config", "", "path to the JSONC configuration file (required)")
	pflag.IntVar(&portFlag, "port", 0, "bind port override (default: from config, or 8766)")
	pflag.Parse()

	if configPath == "" {
		pflag.Usage()
		return fmt.Errorf("--config is required")
	}

	config, err := proxy.LoadConfig(configPath)
	if err != nil {
		return err
	}
	defer config.Close()

	port := config.Port
	if portFlag != 0 {
		port = portFlag
	}

	// The plugin set is fixed in code; only plugins with config
	// present activate.
	var plugins []plugin.Plugin

	// Shared outbound client: one connection pool for GraphQL, REST,
	// health probes, and the git reverse proxy. No overall timeout —
	// pack transfers stream for as long as they take; per-call
	// deadlines come from request contexts.
	outbound := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: config.HTTPTimeout,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	// Masking must wrap the log handler before anything touches a
	// credential; build it from config secrets plus each plugin's
	// token prefixes (known statically).
	prefixes := append(append([]string{}, github.TokenPrefixes...), google.TokenPrefixes...)
	masker := masking.New(config.Secrets, prefixes)
	logger := slog.New(masking.NewHandler(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}),
		masker,
	))
	slog.SetDefault(logger)

	var auditStore *audit.Store
	if config.AuditDB != "" {
		auditStore, err = audit.Open(config.AuditDB, logger)
		if err != nil {
			return err
		}
		defer auditStore.Close()
	}

	if entries, ok := config.Plugins["github"]; ok {
		plugins = append(plugins, github.New(github.Config{
			Entries:     entries,
			HTTPClient:  outbound,
			Masker:      masker,
			Audit:       auditRecorder(auditStore),
			HTTPTimeout: config.HTTPTimeout,
			Logger:      logger,
		}))
	}
	if entries, ok := config.Plugins["google"]; ok {
		plugins = append(plugins, google.New(google.Config{
			Entries:      entries,
			Masker:       masker,
			ProbeTimeout: config.HTTPTimeout,
			Logger:       logger,
		}))
	}

	registry, err := plugin.NewRegistry(plugins...)
	if err != nil {
		return fmt.Errorf("building plugin registry: %w", err)
	}

	handler := proxy.NewHandler(proxy.HandlerConfig{
		Registry:    registry,
		Executor:    proxy.NewExecutor(config.CLITimeout, logger),
		Policy:      proxy.AllowAllPolicy{},
		Masker:      masker,
		Audit:       auditStore,
		HTTPTimeout: config.HTTPTimeout,
		Logger:      logger,
	})

	server, err := proxy.NewServer(proxy.ServerConfig{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: handler,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// auditRecorder converts a possibly-nil *audit.Store into the
// interface the plugins take, keeping the nil check in one place.
func auditRecorder(store *audit.Store) audit.Recorder {
	if store == nil {
		return nil
	}
	return store
}
